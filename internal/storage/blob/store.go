package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docuflow/backend/internal/crypto"
)

// Store keeps encrypted document content on disk, addressable by
// document id. Writes are atomic (temp file + rename) so a crashed
// worker never leaves a half-written blob behind.
type Store struct {
	dir    string
	cipher *crypto.Cipher
}

func NewStore(dir string, cipher *crypto.Cipher) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &Store{dir: dir, cipher: cipher}, nil
}

// Path returns the content reference stored on the Document record.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".bin")
}

// Put encrypts r into the store and returns the plaintext hash and
// size along with the content reference.
func (s *Store) Put(id string, r io.Reader) (ref, hash string, size int64, err error) {
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash, size, _, err = s.cipher.EncryptStream(r, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to encrypt blob: %w", err)
	}

	ref = s.Path(id)
	if err := os.Rename(tmp.Name(), ref); err != nil {
		return "", "", 0, fmt.Errorf("failed to store blob: %w", err)
	}
	return ref, hash, size, nil
}

// Get decrypts the stored content into w.
func (s *Store) Get(id string, w io.Writer) (int64, error) {
	f, err := os.Open(s.Path(id))
	if err != nil {
		return 0, fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()
	return s.cipher.DecryptStream(f, w)
}

// Delete removes a blob; absent blobs are not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

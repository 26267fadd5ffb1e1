package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// ChunkSize is the plaintext unit for both hashing and the
	// streaming cipher. 64KiB keeps memory flat for arbitrarily
	// large scans.
	ChunkSize = 64 * 1024

	// MaxBlobSize bounds the legacy whole-blob cipher. Anything
	// larger must go through the streaming API.
	MaxBlobSize = 100 << 20

	nonceSize = 12
	keySize   = 32
)

var (
	ErrTooLarge = errors.New("crypto: plaintext exceeds whole-blob size limit")
	ErrFraming  = errors.New("crypto: truncated or corrupt chunk framing")
	ErrKeySize  = errors.New("crypto: key must be 32 bytes")
)

// Cipher provides authenticated encryption for document content.
// Every chunk gets a fresh random nonce, so the same key is safe
// across the whole archive.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func NewCipherFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return NewCipher(key)
}

// HashReader computes the hex SHA-256 of r incrementally without
// buffering the whole input.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, ChunkSize))
	if err != nil {
		return "", n, fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// EncryptStream reads plaintext from r in ChunkSize units, hashes it,
// and writes one framed ciphertext record per chunk to w:
//
//	[4-byte big-endian ciphertext length][12-byte nonce][ciphertext+tag]
//
// The length prefix makes the output verifiable chunk by chunk.
func (c *Cipher) EncryptStream(r io.Reader, w io.Writer) (hash string, read, written int64, err error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	header := make([]byte, 4+nonceSize)

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			read += int64(n)
			h.Write(buf[:n])

			nonce := header[4:]
			if _, err := rand.Read(nonce); err != nil {
				return "", read, written, fmt.Errorf("failed to generate nonce: %w", err)
			}
			ct := c.aead.Seal(nil, nonce, buf[:n], nil)
			binary.BigEndian.PutUint32(header[:4], uint32(len(ct)))

			if _, err := w.Write(header); err != nil {
				return "", read, written, fmt.Errorf("failed to write chunk header: %w", err)
			}
			written += int64(len(header))
			if _, err := w.Write(ct); err != nil {
				return "", read, written, fmt.Errorf("failed to write chunk: %w", err)
			}
			written += int64(len(ct))
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return "", read, written, fmt.Errorf("failed to read plaintext: %w", readErr)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), read, written, nil
}

// DecryptStream reverses EncryptStream. A clean EOF on a chunk
// boundary ends the stream; truncation inside a frame is ErrFraming.
func (c *Cipher) DecryptStream(r io.Reader, w io.Writer) (written int64, err error) {
	header := make([]byte, 4+nonceSize)

	for {
		if _, err := io.ReadFull(r, header[:4]); err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, ErrFraming
		}
		ctLen := binary.BigEndian.Uint32(header[:4])
		if ctLen < uint32(c.aead.Overhead()) || ctLen > ChunkSize+uint32(c.aead.Overhead()) {
			return written, ErrFraming
		}
		if _, err := io.ReadFull(r, header[4:]); err != nil {
			return written, ErrFraming
		}

		ct := make([]byte, ctLen)
		if _, err := io.ReadFull(r, ct); err != nil {
			return written, ErrFraming
		}

		pt, err := c.aead.Open(nil, header[4:], ct, nil)
		if err != nil {
			return written, fmt.Errorf("failed to authenticate chunk: %w", err)
		}
		n, err := w.Write(pt)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write plaintext: %w", err)
		}
	}
}

// Encrypt is the legacy whole-blob path for small payloads. The
// result is nonce||ciphertext in a single frame-less record.
func (c *Cipher) Encrypt(data []byte) ([]byte, error) {
	if len(data) > MaxBlobSize {
		return nil, ErrTooLarge
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, data, nil), nil
}

func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceSize+c.aead.Overhead() {
		return nil, ErrFraming
	}
	pt, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}
	return pt, nil
}

package blob

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/backend/internal/crypto"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	cipher, err := crypto.NewCipher(key)
	require.NoError(t, err)

	store, err := NewStore(t.TempDir(), cipher)
	require.NoError(t, err)
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := testStore(t)
	content := "Lohnschein Dezember 2025"

	ref, hash, size, err := store.Put("doc-1", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, store.Path("doc-1"), ref)
	assert.Equal(t, int64(len(content)), size)
	assert.Len(t, hash, 64)

	// On-disk bytes must not contain the plaintext.
	raw, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), content)

	var out bytes.Buffer
	n, err := store.Get("doc-1", &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, out.String())
}

func TestGetMissing(t *testing.T) {
	store := testStore(t)
	var out bytes.Buffer
	_, err := store.Get("absent", &out)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store := testStore(t)
	_, _, _, err := store.Put("doc-2", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete("doc-2"))
	require.NoError(t, store.Delete("doc-2"))

	_, err = os.Stat(store.Path("doc-2"))
	assert.True(t, os.IsNotExist(err))
}

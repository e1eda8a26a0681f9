package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("nominations/abc/diploma.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "nominations/abc/diploma.pdf", name)
	assert.True(t, store.Exists(name))

	data, err := store.Read(name)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)

	_, err = store.Save(name, []byte("pdf v2"))
	require.NoError(t, err)
	data, err = store.Read(name)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf v2"), data)

	require.NoError(t, store.Delete(name))
	assert.False(t, store.Exists(name))
	require.NoError(t, store.Delete(name))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../secret", "/etc/passwd", ""} {
		_, err := store.Save(name, []byte("x"))
		assert.True(t, errors.Is(err, ErrInvalidPath), name)
	}
}

package storage

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "subjects/p1/informe.csv", []byte("a,b\n"), "text/csv"))
	rc, err := store.Open(ctx, "subjects/p1/informe.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "a,b\n", string(data))

	require.NoError(t, store.Delete(ctx, "subjects/p1/informe.csv"))
	_, err = store.Open(ctx, "subjects/p1/informe.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Save(context.Background(), "../outside.txt", []byte("x"), ""))
	assert.Error(t, store.Save(context.Background(), "/etc/passwd", []byte("x"), ""))
}

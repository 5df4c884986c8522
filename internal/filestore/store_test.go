package filestore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/config"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())
	ctx := context.Background()

	body := []byte("quarterly report")
	require.NoError(t, store.Save(ctx, "u1_abc.pdf", bytes.NewReader(body), int64(len(body))))

	rc, err := store.Open(ctx, "u1_abc.pdf")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, body, got)

	require.NoError(t, store.Delete(ctx, "u1_abc.pdf"))
	require.NoError(t, store.Delete(ctx, "u1_abc.pdf"))
	_, err = store.Open(ctx, "u1_abc.pdf")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	for _, key := range []string{"", "../x", "a/b", `a\b`} {
		require.Error(t, store.Save(context.Background(), key, bytes.NewReader(nil), 0), key)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "ftp", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"region": "eu-west-1"}})
	require.Error(t, err)
}

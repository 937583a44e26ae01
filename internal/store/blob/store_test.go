package blob

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndHasLayer(t *testing.T) {
	store, err := New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	payload := []byte("gzip-tar-bytes")
	digest := Digest(payload)

	assert.False(t, store.HasLayer(digest))
	require.NoError(t, store.SaveLayer(digest, bytes.NewReader(payload)))
	assert.True(t, store.HasLayer(digest))
	assert.Equal(t, filepath.Base(store.LayerPath(digest)), filepath.Base(store.LayerPath(digest)))
}

func TestSaveLayerRejectsDigestMismatch(t *testing.T) {
	store, err := New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	wrongDigest := Digest([]byte("something else"))
	err = store.SaveLayer(wrongDigest, bytes.NewReader([]byte("payload")))
	require.Error(t, err)
	assert.False(t, store.HasLayer(wrongDigest))
}

func TestSaveLayerRejectsMalformedDigest(t *testing.T) {
	store, err := New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	err = store.SaveLayer("not-a-digest", bytes.NewReader([]byte("payload")))
	require.Error(t, err)
}

func TestSaveAndLoadConfig(t *testing.T) {
	store, err := New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	require.NoError(t, store.SaveConfig("abc123", []byte(`{"architecture":"amd64"}`)))
	data, err := store.LoadConfig("abc123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"architecture":"amd64"}`, string(data))
}

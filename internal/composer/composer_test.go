package composer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/furukawa-project/furukawad/internal/store/blob"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLayer(t *testing.T, entries map[string]string, whiteouts []string, opaqueDirs []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Size: int64(len(content)), Mode: 0644}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	for _, name := range whiteouts {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Size: 0, Mode: 0644}))
	}
	for _, dir := range opaqueDirs {
		name := filepath.ToSlash(filepath.Join(dir, opaqueMarkerName))
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Size: 0, Mode: 0644}))
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func saveLayer(t *testing.T, store blob.Store, data []byte) string {
	t.Helper()
	digest := blob.Digest(data)
	require.NoError(t, store.SaveLayer(digest, bytes.NewReader(data)))
	return digest
}

func TestComposeRootfsWhiteout(t *testing.T) {
	store, err := blob.New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	l1 := buildLayer(t, map[string]string{
		"etc/config":     "base",
		"usr/bin/app":    "v1",
	}, nil, nil)
	l2 := buildLayer(t, map[string]string{
		"usr/bin/app": "v2",
	}, []string{"etc/.wh.config"}, nil)

	d1 := saveLayer(t, store, l1)
	d2 := saveLayer(t, store, l2)

	c := New(store, hclog.NewNullLogger())
	target := t.TempDir()
	require.NoError(t, c.ComposeRootfs([]string{d1, d2}, target))

	appContent, err := os.ReadFile(filepath.Join(target, "usr/bin/app"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(appContent))

	_, err = os.Stat(filepath.Join(target, "etc/config"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(target, "etc/.wh.config"))
	assert.True(t, os.IsNotExist(err))
}

func TestComposeRootfsOpaqueDirectory(t *testing.T) {
	store, err := blob.New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	l1 := buildLayer(t, map[string]string{
		"data/old1": "x",
		"data/old2": "y",
	}, nil, nil)
	l2 := buildLayer(t, map[string]string{
		"data/new": "z",
	}, nil, []string{"data"})

	d1 := saveLayer(t, store, l1)
	d2 := saveLayer(t, store, l2)

	c := New(store, hclog.NewNullLogger())
	target := t.TempDir()
	require.NoError(t, c.ComposeRootfs([]string{d1, d2}, target))

	_, err = os.Stat(filepath.Join(target, "data/old1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(target, "data/old2"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(target, "data", opaqueMarkerName))
	assert.True(t, os.IsNotExist(err))

	newContent, err := os.ReadFile(filepath.Join(target, "data/new"))
	require.NoError(t, err)
	assert.Equal(t, "z", string(newContent))
}

func TestComposeRootfsRejectsUnsafePath(t *testing.T) {
	store, err := blob.New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../../etc/passwd", Typeflag: tar.TypeReg, Size: 1, Mode: 0644}))
	_, err = tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	digest := saveLayer(t, store, buf.Bytes())

	c := New(store, hclog.NewNullLogger())
	err = c.ComposeRootfs([]string{digest}, t.TempDir())
	require.Error(t, err)
}

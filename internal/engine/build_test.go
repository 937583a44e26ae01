package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furukawa-project/furukawad/internal/image"
)

func buildTarWithDockerfile(t *testing.T, dockerfileBody string, files map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	writeEntry := func(name, body string) {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	writeEntry("Dockerfile", dockerfileBody)
	for name, body := range files {
		writeEntry(name, body)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestBuildImageComposesLayerAndAppliesCopy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	base := image.Record{ID: "sha256:" + zeroDigest("base"), RepoTags: []string{"library/base:latest"}, Created: 1, Layers: nil}
	require.NoError(t, e.Meta.SaveImage(ctx, base))

	contextTar := buildTarWithDockerfile(t, "FROM library/base:latest\nCOPY app.txt /app.txt\n", map[string]string{
		"app.txt": "hello from build context",
	})

	rec, err := e.BuildImage(ctx, contextTar, "Dockerfile", "myapp:latest")
	require.NoError(t, err)
	assert.Equal(t, []string{"myapp:latest"}, rec.RepoTags)
	assert.Equal(t, base.ID, rec.ParentID)
	assert.NotEmpty(t, rec.ID)
	assert.Contains(t, rec.Layers, rec.ID)

	got, found, err := e.Meta.GetImageByTag(ctx, "myapp:latest")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.ID, got.ID)
}

func TestBuildImageLayerComposesBackIntoRootfs(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	base := image.Record{ID: "sha256:" + zeroDigest("base3"), RepoTags: []string{"library/base3:latest"}, Created: 1, Layers: nil}
	require.NoError(t, e.Meta.SaveImage(ctx, base))

	contextTar := buildTarWithDockerfile(t, "FROM library/base3:latest\nCOPY app.txt /app.txt\n", map[string]string{
		"app.txt": "hello from build context",
	})

	rec, err := e.BuildImage(ctx, contextTar, "Dockerfile", "myapp2:latest")
	require.NoError(t, err)

	// a built layer must be gzip-wrapped the same way a registry-pulled
	// layer is, or composing a rootfs from it fails opening the gzip stream.
	target := filepath.Join(t.TempDir(), "rootfs")
	require.NoError(t, e.Composer.ComposeRootfs(rec.Layers, target))

	body, err := os.ReadFile(filepath.Join(target, "app.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from build context", string(body))
}

func TestBuildImageRejectsPathEscapingTar(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	base := image.Record{ID: "sha256:" + zeroDigest("base2"), RepoTags: []string{"library/base2:latest"}, Created: 1}
	require.NoError(t, e.Meta.SaveImage(ctx, base))

	contextTar := buildTarWithDockerfile(t, "FROM library/base2:latest\nCOPY ../evil.txt /evil.txt\n", nil)

	_, err := e.BuildImage(ctx, contextTar, "Dockerfile", "evil:latest")
	require.Error(t, err)
}

func zeroDigest(seed string) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 64)
	for i := range out {
		out[i] = hex[(int(seed[i%len(seed)])+i)%16]
	}
	return string(out)
}

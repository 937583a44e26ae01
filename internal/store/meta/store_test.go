package meta

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/image"
	"github.com/furukawa-project/furukawad/internal/network"
)

func TestCreateListGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := container.Config{
		Image: "library/alpine:latest",
		Cmd:   []string{"true"},
		PortBindings: []docker.PortMapping{
			{ContainerPort: 80, HostPort: 18080, Protocol: "tcp"},
		},
	}
	created := container.New("abc123", cfg, time.Now().UTC())
	require.NoError(t, store.SaveCreated(ctx, created))

	got, found, err := store.GetAny(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, cfg.Image, got.Config.Image)
	assert.Equal(t, cfg.Cmd, got.Config.Cmd)
	assert.Equal(t, cfg.PortBindings, got.Config.PortBindings)
	assert.Equal(t, container.StatusCreated, got.Status)

	list, err := store.ListAny(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "abc123", list[0].ID)
}

func TestSaveRunningThenStoppedPersistsTimestamps(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := container.Config{Image: "library/alpine:latest", Cmd: []string{"true"}}
	created := container.New("c1", cfg, time.Now().UTC())
	require.NoError(t, store.SaveCreated(ctx, created))

	running := &container.Running{ID: "c1", Config: cfg, PID: 4242, StartedAt: time.Now().UTC()}
	require.NoError(t, store.SaveRunning(ctx, running))

	got, found, err := store.GetAny(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, container.StatusRunning, got.Status)
	assert.Equal(t, uint32(4242), got.PID)
	assert.WithinDuration(t, running.StartedAt, got.StartedAt, time.Second)

	stopped := &container.Stopped{ID: "c1", Config: cfg, ExitCode: 7, FinishedAt: time.Now().UTC()}
	require.NoError(t, store.SaveStopped(ctx, stopped))

	got, found, err = store.GetAny(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, container.StatusExited, got.Status)
	assert.Equal(t, int32(7), got.ExitCode)
	assert.WithinDuration(t, stopped.FinishedAt, got.FinishedAt, time.Second)
}

func TestSaveRunningUnknownContainerFails(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.SaveRunning(ctx, &container.Running{ID: "missing", PID: 1, StartedAt: time.Now()})
	require.Error(t, err)
}

func TestContainersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "meta.db")

	store, err := Open(dbPath)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		cfg := container.Config{Image: "library/alpine:latest"}
		require.NoError(t, store.SaveCreated(ctx, container.New(id, cfg, time.Now().UTC())))
	}
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.ListAny(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	var ids []string
	for _, c := range list {
		ids = append(ids, c.ID)
		assert.Equal(t, container.StatusCreated, c.Status)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestRemoveContainerNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.RemoveContainer(ctx, "ghost")
	require.Error(t, err)
}

func TestImageRetagStripsOtherRecord(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer store.Close()

	older := image.Record{ID: "sha256:old", RepoTags: []string{"library/alpine:latest"}, Created: 1, Layers: []string{"sha256:l1"}}
	require.NoError(t, store.SaveImage(ctx, older))

	newer := image.Record{ID: "sha256:new", RepoTags: []string{"library/alpine:latest"}, Created: 2, Layers: []string{"sha256:l2"}}
	require.NoError(t, store.SaveImage(ctx, newer))

	oldGot, found, err := store.GetImage(ctx, "sha256:old")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, oldGot.RepoTags)

	newGot, found, err := store.GetImageByTag(ctx, "library/alpine:latest")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sha256:new", newGot.ID)
}

func TestBuiltinNetworksPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "meta.db")

	store, err := Open(dbPath)
	require.NoError(t, err)
	for _, name := range network.BuiltinNames {
		require.NoError(t, store.SaveNetwork(ctx, network.Record{ID: name, Name: name, Driver: "bridge", Builtin: true}))
	}
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(network.BuiltinNames))
}

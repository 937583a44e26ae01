package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/network"
	"github.com/furukawa-project/furukawad/internal/store/blob"
	"github.com/furukawa-project/furukawad/internal/store/meta"
	"github.com/furukawa-project/furukawad/internal/volume"
)

// fakeRuntime is an in-memory container.Runtime double so engine tests
// never shell out to wsl.exe, following the same injectable-collaborator
// style container.Runtime itself is designed around.
type fakeRuntime struct {
	nextPID  uint32
	stopped  map[string]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{stopped: map[string]bool{}}
}

func (f *fakeRuntime) Start(ctx context.Context, id string, cfg container.Config) (uint32, time.Time, error) {
	f.nextPID++
	return f.nextPID, time.Now().UTC(), nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id string, cfg container.Config, pid uint32) error {
	f.stopped[id] = true
	return nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	m, err := meta.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	blobs, err := blob.New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	vols, err := volume.New(t.TempDir())
	require.NoError(t, err)

	e, err := New(m, blobs, nil, newFakeRuntime(), vols, t.TempDir(), t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)
	return e
}

func TestBuiltinNetworksSeededOnce(t *testing.T) {
	e := newTestEngine(t)
	list, err := e.ListNetworks(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, len(network.BuiltinNames))
}

func TestContainerLifecycleCreateStartStopRemove(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.CreateContainer(ctx, docker.ContainerCreateRequest{
		Image: "library/alpine:latest",
		Cmd:   []string{"true"},
	}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	any, err := e.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, container.StatusCreated, any.Status)

	require.NoError(t, e.StartContainer(ctx, id))
	any, err = e.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, container.StatusRunning, any.Status)
	assert.NotZero(t, any.PID)

	// starting again must fail: already running.
	err = e.StartContainer(ctx, id)
	require.Error(t, err)

	require.NoError(t, e.StopContainer(ctx, id))
	any, err = e.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, container.StatusExited, any.Status)

	// removing a running container must fail; this one is stopped, so it
	// must succeed, and a second remove must 404.
	require.NoError(t, e.RemoveContainer(ctx, id))
	_, err = e.InspectContainer(ctx, id)
	require.Error(t, err)
	err = e.RemoveContainer(ctx, id)
	require.Error(t, err)
}

func TestRemoveRunningContainerRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.CreateContainer(ctx, docker.ContainerCreateRequest{Image: "library/alpine:latest"}, "")
	require.NoError(t, err)
	require.NoError(t, e.StartContainer(ctx, id))

	err = e.RemoveContainer(ctx, id)
	require.Error(t, err)
}

func TestStopNotRunningContainerIsIdempotentNotModified(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.CreateContainer(ctx, docker.ContainerCreateRequest{Image: "library/alpine:latest"}, "")
	require.NoError(t, err)

	// never started: stopping a created-but-not-running container must
	// report CONTAINER_NOT_MODIFIED, not an invalid-transition error, and
	// must leave the container's state untouched.
	err = e.StopContainer(ctx, id)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeContainerNotModified, appErr.Code())

	any, err := e.InspectContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, container.StatusCreated, any.Status)

	require.NoError(t, e.StartContainer(ctx, id))
	require.NoError(t, e.StopContainer(ctx, id))

	// already stopped: a second stop must also be CONTAINER_NOT_MODIFIED,
	// not CONTAINER_INVALID_TRANSITION, and must not re-invoke the runtime.
	err = e.StopContainer(ctx, id)
	require.Error(t, err)
	appErr, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeContainerNotModified, appErr.Code())
}

func TestListContainersReturnsAll(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.CreateContainer(ctx, docker.ContainerCreateRequest{Image: "library/alpine:latest"}, "")
		require.NoError(t, err)
	}

	list, err := e.ListContainers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestNetworkCreateListRemove(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.CreateNetwork(ctx, docker.NetworkCreateRequest{Name: "custom-net"})
	require.NoError(t, err)

	list, err := e.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(network.BuiltinNames)+1)

	require.NoError(t, e.RemoveNetwork(ctx, id))

	list, err = e.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(network.BuiltinNames))
}

func TestCreateNetworkRejectsBuiltinName(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateNetwork(context.Background(), docker.NetworkCreateRequest{Name: "bridge"})
	require.Error(t, err)
}

func TestRemoveBuiltinNetworkRejected(t *testing.T) {
	e := newTestEngine(t)
	err := e.RemoveNetwork(context.Background(), "bridge")
	require.Error(t, err)
}

func TestVolumeCreateListRemove(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateVolume("data")
	require.NoError(t, err)

	list, err := e.ListVolumes()
	require.NoError(t, err)
	require.Len(t, list.Volumes, 1)
	assert.Equal(t, "data", list.Volumes[0].Name)

	require.NoError(t, e.RemoveVolume("data"))
	list, err = e.ListVolumes()
	require.NoError(t, err)
	assert.Len(t, list.Volumes, 0)
}

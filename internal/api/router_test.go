package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/engine"
	"github.com/furukawa-project/furukawad/internal/store/blob"
	"github.com/furukawa-project/furukawad/internal/store/meta"
	"github.com/furukawa-project/furukawad/internal/volume"
)

type fakeRuntime struct{ nextPID uint32 }

func (f *fakeRuntime) Start(ctx context.Context, id string, cfg container.Config) (uint32, time.Time, error) {
	f.nextPID++
	return f.nextPID, time.Now().UTC(), nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id string, cfg container.Config, pid uint32) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	m, err := meta.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	blobs, err := blob.New(t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	vols, err := volume.New(t.TempDir())
	require.NoError(t, err)

	e, err := engine.New(m, blobs, nil, &fakeRuntime{}, vols, t.TempDir(), t.TempDir(), hclog.NewNullLogger())
	require.NoError(t, err)

	router := NewRouter(e, hclog.NewNullLogger())
	return httptest.NewServer(router), e
}

func TestVersionAndInfoEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var v docker.VersionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, APIVersion, v.APIVersion)

	resp2, err := http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestContainerCreateStartStopRemoveOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	createBody, _ := json.Marshal(docker.ContainerCreateRequest{Image: "library/alpine:latest", Cmd: []string{"true"}})
	resp, err := http.Post(srv.URL+"/containers/create", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created docker.ContainerCreateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	startResp, err := http.Post(srv.URL+"/containers/"+created.ID+"/start", "application/json", nil)
	require.NoError(t, err)
	startResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, startResp.StatusCode)

	inspectResp, err := http.Get(srv.URL + "/containers/" + created.ID + "/json")
	require.NoError(t, err)
	defer inspectResp.Body.Close()
	var inspect docker.ContainerInspect
	require.NoError(t, json.NewDecoder(inspectResp.Body).Decode(&inspect))
	assert.True(t, inspect.State.Running)

	stopResp, err := http.Post(srv.URL+"/containers/"+created.ID+"/stop", "application/json", nil)
	require.NoError(t, err)
	stopResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, stopResp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/containers/"+created.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestStopAlreadyStoppedContainerReturns304(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	createBody, _ := json.Marshal(docker.ContainerCreateRequest{Image: "library/alpine:latest", Cmd: []string{"true"}})
	resp, err := http.Post(srv.URL+"/containers/create", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created docker.ContainerCreateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	// never started: stopping it must not be a 409 conflict.
	stopResp, err := http.Post(srv.URL+"/containers/"+created.ID+"/stop", "application/json", nil)
	require.NoError(t, err)
	stopResp.Body.Close()
	assert.Equal(t, http.StatusNotModified, stopResp.StatusCode)

	startResp, err := http.Post(srv.URL+"/containers/"+created.ID+"/start", "application/json", nil)
	require.NoError(t, err)
	startResp.Body.Close()
	require.Equal(t, http.StatusNoContent, startResp.StatusCode)

	firstStop, err := http.Post(srv.URL+"/containers/"+created.ID+"/stop", "application/json", nil)
	require.NoError(t, err)
	firstStop.Body.Close()
	require.Equal(t, http.StatusNoContent, firstStop.StatusCode)

	// already stopped now: a second stop call must be idempotent, not 409.
	secondStop, err := http.Post(srv.URL+"/containers/"+created.ID+"/stop", "application/json", nil)
	require.NoError(t, err)
	secondStop.Body.Close()
	assert.Equal(t, http.StatusNotModified, secondStop.StatusCode)
}

func TestContainerNotFoundReturns404WithDockerCLIBody(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/containers/ghost/json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body docker.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Message)
}

func TestNetworkListIncludesBuiltins(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/networks")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []docker.NetworkResource
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 3)
}

func TestVolumeCreateListRemoveOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	createBody, _ := json.Marshal(docker.VolumeResource{Name: "data"})
	resp, err := http.Post(srv.URL+"/volumes/create", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp, err := http.Get(srv.URL + "/volumes")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var list docker.VolumeListResponse
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list.Volumes, 1)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/volumes/data", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

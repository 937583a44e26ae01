// Package engine is the Engine Service: it holds the owning references to
// every store and adapter and composes their operations for the API layer.
// Uses an opLogger for structured logging of the multi-step image pull
// flow.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/composer"
	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/ids"
	"github.com/furukawa-project/furukawad/internal/image"
	"github.com/furukawa-project/furukawad/internal/network"
	"github.com/furukawa-project/furukawad/internal/registry"
	"github.com/furukawa-project/furukawad/internal/store/blob"
	"github.com/furukawa-project/furukawad/internal/store/meta"
	"github.com/furukawa-project/furukawad/internal/volume"
)

// Engine holds the owning references to every store and adapter and
// composes their operations for handlers. It is otherwise stateless:
// restart semantics are governed entirely by the Metadata Store's
// contents.
type Engine struct {
	Meta     meta.Store
	Blobs    blob.Store
	Registry *registry.Client
	Runtime  container.Runtime
	Volumes  volume.Store
	Composer *composer.Composer
	Executor RootfsExecutor

	ContainersRoot string
	LogsRoot       string
	Locks          *container.Locks
	Logger         hclog.Logger
}

// RootfsExecutor is the capability the image builder needs to run RUN
// instructions against a composed-but-not-yet-started rootfs.
// internal/runtime/wsl.Adapter implements it alongside container.Runtime.
type RootfsExecutor interface {
	RunInRootfs(ctx context.Context, rootfsHostPath string, argv []string, env []string) error
}

// New wires the given collaborators into an Engine, seeding the three
// built-in networks if they are not already present (first run).
func New(m meta.Store, blobs blob.Store, reg *registry.Client, rt container.Runtime, vols volume.Store, containersRoot, logsRoot string, logger hclog.Logger) (*Engine, error) {
	e := &Engine{
		Meta:           m,
		Blobs:          blobs,
		Registry:       reg,
		Runtime:        rt,
		Volumes:        vols,
		Composer:       composer.New(blobs, logger),
		ContainersRoot: containersRoot,
		LogsRoot:       logsRoot,
		Locks:          container.NewLocks(),
		Logger:         logger,
	}
	if executor, ok := rt.(RootfsExecutor); ok {
		e.Executor = executor
	}
	for _, name := range network.BuiltinNames {
		if _, found, err := m.GetNetwork(context.Background(), name); err != nil {
			return nil, err
		} else if !found {
			if err := m.SaveNetwork(context.Background(), network.Record{ID: name, Name: name, Driver: name, Builtin: true}); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

// PullImage resolves ref against the registry, downloads its config and
// layers into the content store, and records (or re-tags) the image in the
// metadata store.
func (e *Engine) PullImage(ctx context.Context, ref string) (image.Record, error) {
	parsed, err := image.ParseReference(ref)
	if err != nil {
		return image.Record{}, err
	}
	opLogger := e.Logger.With("repository", parsed.Repository, "tag", parsed.Tag)

	manifestRef := parsed.Tag
	if parsed.Digest != "" {
		manifestRef = parsed.Digest
	}
	manifest, err := e.Registry.GetManifest(ctx, parsed.Repository, manifestRef)
	if err != nil {
		return image.Record{}, err
	}

	var layerDigests []string
	var totalSize int64
	for _, l := range manifest.Layers {
		totalSize += l.Size
		layerDigests = append(layerDigests, l.Digest)
		if e.Blobs.HasLayer(l.Digest) {
			continue
		}
		body, err := e.Registry.GetBlob(ctx, parsed.Repository, l.Digest)
		if err != nil {
			return image.Record{}, err
		}
		err = e.Blobs.SaveLayer(l.Digest, body)
		body.Close()
		if err != nil {
			return image.Record{}, err
		}
	}

	configData, err := e.Registry.GetBlobCoalesced(ctx, parsed.Repository, manifest.ConfigDigest)
	if err != nil {
		return image.Record{}, err
	}
	if err := e.Blobs.SaveConfig(manifest.ConfigDigest, configData); err != nil {
		return image.Record{}, err
	}

	rec := image.Record{
		ID:       manifest.ConfigDigest,
		RepoTags: []string{parsed.TagString()},
		Created:  time.Now().UTC().Unix(),
		Size:     totalSize,
		Layers:   layerDigests,
	}
	if err := e.Meta.SaveImage(ctx, rec); err != nil {
		return image.Record{}, err
	}
	opLogger.Info("image pulled", "id", rec.ID, "size", rec.Size)
	return rec, nil
}

// ListImages returns every persisted image.
func (e *Engine) ListImages(ctx context.Context) ([]image.Record, error) {
	return e.Meta.ListImages(ctx)
}

// RemoveImage deletes an image record by id or repo:tag.
func (e *Engine) RemoveImage(ctx context.Context, idOrTag string) error {
	if rec, found, err := e.Meta.GetImage(ctx, idOrTag); err == nil && found {
		return e.Meta.RemoveImage(ctx, rec.ID)
	}
	rec, found, err := e.Meta.GetImageByTag(ctx, idOrTag)
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.CodeImageNotFound, "image %q not found", idOrTag)
	}
	return e.Meta.RemoveImage(ctx, rec.ID)
}

// CreateContainer parses the create request into a Config, persists a
// Created record, and returns its generated id. name is the optional
// ?name= query parameter Docker's create endpoint accepts.
func (e *Engine) CreateContainer(ctx context.Context, req docker.ContainerCreateRequest, name string) (string, error) {
	portBindings, err := docker.ParsePortBindings(req.HostConfig.PortBindings)
	if err != nil {
		return "", err
	}
	var binds []docker.Bind
	for _, spec := range req.HostConfig.Binds {
		b, err := docker.ParseBind(spec)
		if err != nil {
			return "", err
		}
		binds = append(binds, b)
	}

	cfg := container.Config{
		Image:        req.Image,
		Cmd:          req.Cmd,
		Env:          req.Env,
		PortBindings: portBindings,
		Binds:        binds,
		NetworkMode:  req.HostConfig.NetworkMode,
		Name:         name,
	}

	id := ids.New()
	unlock := e.Locks.Lock(id)
	defer unlock()

	created := container.New(id, cfg, time.Now().UTC())
	if err := e.Meta.SaveCreated(ctx, created); err != nil {
		return "", err
	}
	return id, nil
}

// StartContainer transitions a Created container to Running, persisting
// the new state before returning. If persistence fails after a successful
// spawn, the spawned process is killed so the container is never silently
// orphaned: spawn -> save_running -> on-save-failure kill.
func (e *Engine) StartContainer(ctx context.Context, id string) error {
	unlock := e.Locks.Lock(id)
	defer unlock()

	any, found, err := e.Meta.GetAny(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", id)
	}
	if any.Status != container.StatusCreated {
		return apperr.Newf(apperr.CodeContainerInvalidTransition, "container %q is not in created state", id)
	}

	created := &container.Created{ID: any.ID, Config: any.Config, CreatedAt: any.CreatedAt}
	running, err := created.Start(ctx, e.Runtime)
	if err != nil {
		return err
	}
	if err := e.Meta.SaveRunning(ctx, running); err != nil {
		stopErr := e.Runtime.Stop(ctx, id, any.Config, running.PID)
		e.Logger.Warn("killed orphaned container after save_running failure", "container", id, "stop-error", stopErr)
		return err
	}
	return nil
}

// StopContainer transitions a Running container to Stopped. Stopping a
// container that is not running is a no-op, not an error that mutates
// state: it reports CodeContainerNotModified (mapped to 304) so repeated
// stop calls stay idempotent the way docker stop itself behaves.
func (e *Engine) StopContainer(ctx context.Context, id string) error {
	unlock := e.Locks.Lock(id)
	defer unlock()

	any, found, err := e.Meta.GetAny(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", id)
	}
	if any.Status != container.StatusRunning {
		return apperr.Newf(apperr.CodeContainerNotModified, "container %q is already stopped", id)
	}

	running := &container.Running{ID: any.ID, Config: any.Config, CreatedAt: any.CreatedAt, PID: any.PID, StartedAt: any.StartedAt}
	stopped, err := running.Stop(ctx, e.Runtime, 0, time.Now().UTC())
	if err != nil {
		return err
	}
	return e.Meta.SaveStopped(ctx, stopped)
}

// RemoveContainer deletes a stopped container's record and its rootfs/log.
func (e *Engine) RemoveContainer(ctx context.Context, id string) error {
	unlock := e.Locks.Lock(id)
	defer unlock()

	any, found, err := e.Meta.GetAny(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", id)
	}
	if any.Status == container.StatusRunning {
		return apperr.Newf(apperr.CodeContainerInvalidTransition, "container %q is running, stop it first", id)
	}

	if err := e.Meta.RemoveContainer(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(e.ContainersRoot, id)); err != nil {
		e.Logger.Warn("failed removing container directory, continuing", "container", id, "error", err)
	}
	return nil
}

// OpenContainerLog opens the log file the runtime adapter wrote the
// container's combined stdout/stderr to.
func (e *Engine) OpenContainerLog(id string) (*os.File, error) {
	f, err := os.Open(filepath.Join(e.LogsRoot, id+".log"))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeFSIOError, err, "failed opening container log")
	}
	return f, nil
}

// ListContainers returns every persisted container's erased view.
func (e *Engine) ListContainers(ctx context.Context) ([]container.AnyContainer, error) {
	return e.Meta.ListAny(ctx)
}

// InspectContainer returns the erased view of a single container.
func (e *Engine) InspectContainer(ctx context.Context, id string) (container.AnyContainer, error) {
	any, found, err := e.Meta.GetAny(ctx, id)
	if err != nil {
		return container.AnyContainer{}, err
	}
	if !found {
		return container.AnyContainer{}, apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", id)
	}
	return any, nil
}

// CreateNetwork persists a new user-defined network.
func (e *Engine) CreateNetwork(ctx context.Context, req docker.NetworkCreateRequest) (string, error) {
	if network.IsBuiltin(req.Name) {
		return "", apperr.Newf(apperr.CodeNetworkImmutable, "network name %q is reserved", req.Name)
	}
	id := ids.New()
	rec := network.Record{ID: id, Name: req.Name, Driver: req.Driver, Labels: req.Labels}
	if rec.Driver == "" {
		rec.Driver = "bridge"
	}
	if err := e.Meta.SaveNetwork(ctx, rec); err != nil {
		return "", err
	}
	return id, nil
}

// ListNetworks returns every persisted network, built-in and user-defined.
func (e *Engine) ListNetworks(ctx context.Context) ([]network.Record, error) {
	return e.Meta.ListNetworks(ctx)
}

// RemoveNetwork deletes a user-defined network; built-in networks cannot be removed.
func (e *Engine) RemoveNetwork(ctx context.Context, id string) error {
	rec, found, err := e.Meta.GetNetwork(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.CodeNetworkNotFound, "network %q not found", id)
	}
	if rec.Builtin {
		return apperr.Newf(apperr.CodeNetworkImmutable, "network %q is built-in and cannot be removed", rec.Name)
	}
	return e.Meta.RemoveNetwork(ctx, id)
}

// CreateVolume creates (or idempotently re-creates) a named volume.
func (e *Engine) CreateVolume(name string) (docker.VolumeResource, error) {
	mountpoint, err := e.Volumes.Create(name)
	if err != nil {
		return docker.VolumeResource{}, err
	}
	return docker.VolumeResource{Name: name, Driver: "local", Mountpoint: mountpoint}, nil
}

// ListVolumes returns every volume currently on disk.
func (e *Engine) ListVolumes() (docker.VolumeListResponse, error) {
	names, err := e.Volumes.List()
	if err != nil {
		return docker.VolumeListResponse{}, err
	}
	resp := docker.VolumeListResponse{}
	for _, name := range names {
		mountpoint, _ := e.Volumes.Get(name)
		resp.Volumes = append(resp.Volumes, docker.VolumeResource{Name: name, Driver: "local", Mountpoint: mountpoint})
	}
	return resp, nil
}

// RemoveVolume deletes a named volume's backing directory.
func (e *Engine) RemoveVolume(name string) error {
	return e.Volumes.Remove(name)
}

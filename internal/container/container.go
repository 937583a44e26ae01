// Package container implements furukawad's container lifecycle state
// machine: Created, Running, and Stopped are distinct Go types, and a
// transition exists only as a method on the type it starts from. Calling
// .Start() on a Stopped value is not a method that exists, so it is a
// compile-time error rather than a runtime state check — the design this
// package's grounding in furukawa_domain::container's phantom-typed Rust
// Container<S> insists on preserving.
package container

import (
	"context"
	"time"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/docker"
)

// Config is the immutable launch configuration captured at create time.
type Config struct {
	Image        string
	Cmd          []string
	Env          []string
	PortBindings []docker.PortMapping
	Binds        []docker.Bind
	NetworkMode  string
	Name         string
}

// Runtime is the capability the FSM calls into to actually start or stop a
// container process. internal/runtime/wsl implements it.
type Runtime interface {
	Start(ctx context.Context, id string, cfg Config) (pid uint32, startedAt time.Time, err error)
	Stop(ctx context.Context, id string, cfg Config, pid uint32) error
}

// Created is a container that has been persisted but never started.
type Created struct {
	ID        string
	Config    Config
	CreatedAt time.Time
}

// Running is a container whose process is (or was, at last observation)
// alive, carrying the fields that must survive a restart: pid and
// started_at.
type Running struct {
	ID        string
	Config    Config
	CreatedAt time.Time
	PID       uint32
	StartedAt time.Time
}

// Stopped is a container whose process has exited.
type Stopped struct {
	ID         string
	Config     Config
	CreatedAt  time.Time
	ExitCode   int32
	FinishedAt time.Time
}

// New constructs a freshly-created container with the given id.
func New(id string, cfg Config, createdAt time.Time) *Created {
	return &Created{ID: id, Config: cfg, CreatedAt: createdAt}
}

// Start transitions Created -> Running by asking rt to spawn the process.
// Only Created values have a Start method: there is no way to call it on a
// Running or Stopped value.
func (c *Created) Start(ctx context.Context, rt Runtime) (*Running, error) {
	pid, startedAt, err := rt.Start(ctx, c.ID, c.Config)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRuntimeSpawnFailed, err, "failed starting container "+c.ID)
	}
	return &Running{
		ID:        c.ID,
		Config:    c.Config,
		CreatedAt: c.CreatedAt,
		PID:       pid,
		StartedAt: startedAt,
	}, nil
}

// Stop transitions Running -> Stopped by asking rt to terminate the
// process. Only Running values have a Stop method.
func (r *Running) Stop(ctx context.Context, rt Runtime, exitCode int32, finishedAt time.Time) (*Stopped, error) {
	if err := rt.Stop(ctx, r.ID, r.Config, r.PID); err != nil {
		return nil, apperr.Wrap(apperr.CodeRuntimeSpawnFailed, err, "failed stopping container "+r.ID)
	}
	return &Stopped{
		ID:         r.ID,
		Config:     r.Config,
		CreatedAt:  r.CreatedAt,
		ExitCode:   exitCode,
		FinishedAt: finishedAt,
	}, nil
}

// Status is one of the three lifecycle names the Docker API reports.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// AnyContainer is the variant-erased view used for listings and inspect:
// it carries enough to render a Docker API response but exposes no
// transition methods, so a caller holding one cannot accidentally start or
// stop a container it only meant to enumerate.
type AnyContainer struct {
	ID         string
	Config     Config
	Status     Status
	CreatedAt  time.Time
	PID        uint32
	StartedAt  time.Time
	ExitCode   int32
	FinishedAt time.Time
}

// Erase converts a Created value into its erased view.
func (c *Created) Erase() AnyContainer {
	return AnyContainer{ID: c.ID, Config: c.Config, Status: StatusCreated, CreatedAt: c.CreatedAt}
}

// Erase converts a Running value into its erased view.
func (r *Running) Erase() AnyContainer {
	return AnyContainer{
		ID: r.ID, Config: r.Config, Status: StatusRunning,
		CreatedAt: r.CreatedAt, PID: r.PID, StartedAt: r.StartedAt,
	}
}

// Erase converts a Stopped value into its erased view.
func (s *Stopped) Erase() AnyContainer {
	return AnyContainer{
		ID: s.ID, Config: s.Config, Status: StatusExited,
		CreatedAt: s.CreatedAt, ExitCode: s.ExitCode, FinishedAt: s.FinishedAt,
	}
}

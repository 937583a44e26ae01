// Package wsl is the Runtime Adapter: given a Created container it starts
// the process inside the managed WSL2 distribution; given a Running
// container it stops it. Uses an opLogger convention for per-operation
// structured logging.
package wsl

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/composer"
	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/procctl"
	"github.com/furukawa-project/furukawad/internal/runtime/wsl/portproxy"
	"github.com/hashicorp/go-hclog"
)

// ImageResolver returns the ordered layer digests for an image reference.
// cmd/furukawad supplies this from the metadata store so the adapter
// itself holds no store reference: the Runtime Adapter owns no persistent
// state beyond the per-container rootfs directory.
type ImageResolver func(imageRef string) (layers []string, found bool, err error)

// Adapter implements container.Runtime against a managed WSL distribution.
type Adapter struct {
	Distro        string
	ContainersRoot string // host path, e.g. <data root>/furukawa_data/containers
	LogsRoot      string // host path, e.g. <data root>/furukawa_logs

	Composer      *composer.Composer
	Images        ImageResolver
	Ports         portproxy.Manager
	Logger        hclog.Logger
}

var _ container.Runtime = (*Adapter)(nil)

// Start implements container.Runtime.
func (a *Adapter) Start(ctx context.Context, id string, cfg container.Config) (uint32, time.Time, error) {
	opLogger := a.Logger.With("container", id, "image", cfg.Image)

	layers, found, err := a.Images(cfg.Image)
	if err != nil {
		return 0, time.Time{}, apperr.Wrap(apperr.CodeRuntimeImageResolutionFailed, err, "failed resolving image")
	}
	if !found {
		return 0, time.Time{}, apperr.Newf(apperr.CodeRuntimeImageResolutionFailed, "image %q not found", cfg.Image)
	}

	rootfsHostPath := filepath.Join(a.ContainersRoot, id, "rootfs")
	if _, statErr := os.Stat(rootfsHostPath); os.IsNotExist(statErr) {
		opLogger.Debug("composing rootfs", "path", rootfsHostPath)
		if err := a.Composer.ComposeRootfs(layers, rootfsHostPath); err != nil {
			os.RemoveAll(filepath.Join(a.ContainersRoot, id))
			return 0, time.Time{}, apperr.Wrap(apperr.CodeRuntimeRootfsCompositionFailed, err, "failed composing rootfs")
		}
	}

	wslRootfs, err := ToWSLPath(ctx, a.Distro, rootfsHostPath)
	if err != nil {
		return 0, time.Time{}, apperr.Wrap(apperr.CodeRuntimeRootfsCompositionFailed, err, "failed translating rootfs path")
	}

	for _, bind := range cfg.Binds {
		if err := a.mountBind(ctx, rootfsHostPath, wslRootfs, bind); err != nil {
			opLogger.Warn("bind mount failed, continuing", "host-path", bind.HostPath, "error", err)
		}
	}

	argv := cfg.Cmd
	if len(argv) == 0 {
		argv = []string{"sh"}
	}

	args := []string{"-d", a.Distro, "-u", "root", "--"}
	for _, kv := range cfg.Env {
		args = append(args, "env", kv)
	}
	args = append(args, "chroot", wslRootfs)
	args = append(args, argv...)

	logPath := filepath.Join(a.LogsRoot, id+".log")
	if err := os.MkdirAll(a.LogsRoot, 0755); err != nil {
		return 0, time.Time{}, apperr.Wrap(apperr.CodeRuntimeLogSetupFailed, err, "failed creating logs directory")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, time.Time{}, apperr.Wrap(apperr.CodeRuntimeLogSetupFailed, err, "failed opening container log file")
	}

	cmd := exec.Command("wsl", args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, time.Time{}, apperr.Wrap(apperr.CodeRuntimeSpawnFailed, err, "failed spawning container process")
	}
	if cmd.Process == nil {
		logFile.Close()
		return 0, time.Time{}, apperr.New(apperr.CodeRuntimeNoPID, "spawned process has no PID")
	}

	pid := uint32(cmd.Process.Pid)
	startedAt := time.Now().UTC()

	// Spawned containers are unsupervised after this point; reap the
	// wsl.exe child so it does not linger as a zombie.
	go func() {
		cmd.Wait()
		logFile.Close()
	}()

	if len(cfg.PortBindings) > 0 {
		guestIP, err := a.guestIPAddress(ctx)
		if err != nil {
			opLogger.Warn("failed discovering guest IP, ports not forwarded", "error", err)
		} else if err := a.publishPorts(ctx, guestIP, cfg.PortBindings); err != nil {
			opLogger.Warn("port forwarding failed, continuing", "error", err)
		}
	}

	return pid, startedAt, nil
}

// Stop implements container.Runtime.
func (a *Adapter) Stop(ctx context.Context, id string, cfg container.Config, pid uint32) error {
	opLogger := a.Logger.With("container", id, "pid", pid)

	rootfsHostPath := filepath.Join(a.ContainersRoot, id, "rootfs")
	wslRootfs, pathErr := ToWSLPath(ctx, a.Distro, rootfsHostPath)
	if pathErr == nil {
		for _, bind := range cfg.Binds {
			target := fmt.Sprintf("%s/%s", strings.TrimRight(wslRootfs, "/"), strings.TrimLeft(filepath.ToSlash(bind.ContainerPath), "/"))
			if err := a.runInDistro(ctx, "umount", target); err != nil {
				opLogger.Debug("umount failed, continuing", "target", target, "error", err)
			}
		}
	}

	if len(cfg.PortBindings) > 0 {
		var ports []portproxy.ExposedPort
		for _, pm := range cfg.PortBindings {
			spec := fmt.Sprintf("%d:%d/%s", pm.HostPort, pm.ContainerPort, pm.Protocol)
			if ep, err := portproxy.ExposedPortFromString(spec, "0.0.0.0"); err == nil {
				ports = append(ports, ep)
			}
		}
		if err := a.Ports.Unpublish(ctx, ports); err != nil {
			opLogger.Warn("failed removing portproxy rules", "error", err)
		}
	}

	if err := procctl.Stop(pid); err != nil {
		return apperr.Wrap(apperr.CodeRuntimeSpawnFailed, err, "failed terminating container process")
	}
	return nil
}

// RunInRootfs chroots into rootfsHostPath and runs argv synchronously,
// for the image builder's RUN instructions. Unlike Start, the command is
// not tracked as a container: it blocks until it exits and returns its
// combined output folded into the error on failure.
func (a *Adapter) RunInRootfs(ctx context.Context, rootfsHostPath string, argv []string, env []string) error {
	wslRootfs, err := ToWSLPath(ctx, a.Distro, rootfsHostPath)
	if err != nil {
		return apperr.Wrap(apperr.CodeRuntimeRootfsCompositionFailed, err, "failed translating rootfs path")
	}

	args := []string{"-d", a.Distro, "-u", "root", "--"}
	for _, kv := range env {
		args = append(args, "env", kv)
	}
	args = append(args, "chroot", wslRootfs)
	args = append(args, argv...)

	cmd := exec.CommandContext(ctx, "wsl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperr.Wrap(apperr.CodeRuntimeSpawnFailed, fmt.Errorf("%s: %w", string(out), err), "build command failed")
	}
	return nil
}

func (a *Adapter) mountBind(ctx context.Context, rootfsHostPath, wslRootfs string, bind docker.Bind) error {
	mountPointHost := filepath.Join(rootfsHostPath, bind.ContainerPath)
	if err := os.MkdirAll(mountPointHost, 0755); err != nil {
		return err
	}

	wslHostPath, err := ToWSLPath(ctx, a.Distro, bind.HostPath)
	if err != nil {
		return err
	}
	target := fmt.Sprintf("%s/%s", strings.TrimRight(wslRootfs, "/"), strings.TrimLeft(filepath.ToSlash(bind.ContainerPath), "/"))

	args := []string{"mount", "--bind", wslHostPath, target}
	if bind.ReadOnly {
		args = append(args, "-o", "ro")
	}
	return a.runInDistro(ctx, args...)
}

func (a *Adapter) runInDistro(ctx context.Context, args ...string) error {
	full := append([]string{"-d", a.Distro, "-u", "root", "--"}, args...)
	cmd := exec.CommandContext(ctx, "wsl", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", strings.Join(args, " "), string(out))
	}
	return nil
}

func (a *Adapter) guestIPAddress(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "wsl", "-d", a.Distro, "--", "hostname", "-I")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			return fields[0], nil
		}
	}
	return "", apperr.New(apperr.CodeRuntimePortForwardingFailed, "hostname -I returned no address")
}

func (a *Adapter) publishPorts(ctx context.Context, guestIP string, bindings []docker.PortMapping) error {
	var ports []portproxy.ExposedPort
	for _, pm := range bindings {
		spec := fmt.Sprintf("%d:%d/%s", pm.HostPort, pm.ContainerPort, pm.Protocol)
		ep, err := portproxy.ExposedPortFromString(spec, "0.0.0.0")
		if err != nil {
			continue
		}
		ports = append(ports, ep)
	}
	return a.Ports.Publish(ctx, guestIP, ports)
}

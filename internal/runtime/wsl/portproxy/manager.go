// Package portproxy manages host-to-guest TCP/UDP forwarding rules through
// Windows' netsh interface portproxy, the host-side half of furukawad's
// port publishing story: the guest Linux distribution is reachable only on
// its own WSL2 virtual NIC, so every published container port gets a
// corresponding v4tov4 rule binding 0.0.0.0 (or the requested host
// address) on the Windows host to the guest's address.
package portproxy

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Manager publishes and retracts exposed ports. It owns no netsh state of
// its own, so Publish/Unpublish are idempotent: re-adding an existing rule,
// or removing one already gone, are not errors.
type Manager interface {
	// Publish adds v4tov4 portproxy rules forwarding each port to guestAddress.
	Publish(ctx context.Context, guestAddress string, ports []ExposedPort) error
	// Unpublish removes the portproxy rules for the given ports.
	Unpublish(ctx context.Context, ports []ExposedPort) error
}

type netshManager struct {
	logger hclog.Logger
	mu     sync.Mutex
	runner commandRunner
}

type commandRunner func(ctx context.Context, args ...string) error

// NewManager returns a Manager that shells out to netsh.exe.
func NewManager(logger hclog.Logger) Manager {
	return &netshManager{logger: logger, runner: runNetsh}
}

// Publish adds v4tov4 portproxy rules forwarding each port to guestAddress.
func (m *netshManager) Publish(ctx context.Context, guestAddress string, ports []ExposedPort) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, port := range ports {
		opLogger := m.logger.With("host-port", port.HostPort(), "guest-port", port.GuestPort(), "protocol", port.Protocol())
		args := []string{"interface", "portproxy", "add", "v4tov4",
			fmt.Sprintf("listenaddress=%s", port.HostAddress()),
			fmt.Sprintf("listenport=%d", port.HostPort()),
			fmt.Sprintf("connectaddress=%s", guestAddress),
			fmt.Sprintf("connectport=%d", port.GuestPort()),
		}
		if err := m.runner(ctx, args...); err != nil {
			return errors.Wrapf(err, "failed publishing port %s", port)
		}
		opLogger.Debug("port published")
	}
	return nil
}

// Unpublish removes the portproxy rules for the given ports.
func (m *netshManager) Unpublish(ctx context.Context, ports []ExposedPort) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, port := range ports {
		opLogger := m.logger.With("host-port", port.HostPort(), "protocol", port.Protocol())
		args := []string{"interface", "portproxy", "delete", "v4tov4",
			fmt.Sprintf("listenaddress=%s", port.HostAddress()),
			fmt.Sprintf("listenport=%d", port.HostPort()),
		}
		if err := m.runner(ctx, args...); err != nil {
			opLogger.Warn("failed removing portproxy rule, continuing", "error", err)
			continue
		}
		opLogger.Debug("port unpublished")
	}
	return nil
}

func runNetsh(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "netsh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "netsh %v: %s", args, string(out))
	}
	return nil
}

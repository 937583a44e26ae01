package portproxy

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

const defaultProtocol = "tcp"

// ExposedPort represents a single host-to-guest port forward managed through
// netsh interface portproxy.
type ExposedPort interface {
	HostAddress() string
	HostPort() int
	GuestPort() int
	Protocol() string
	String() string
}

type defaultExposedPort struct {
	hostAddress string
	hostPort    int
	guestPort   int
	protocol    string
}

func (p *defaultExposedPort) HostAddress() string { return p.hostAddress }
func (p *defaultExposedPort) HostPort() int       { return p.hostPort }
func (p *defaultExposedPort) GuestPort() int      { return p.guestPort }
func (p *defaultExposedPort) Protocol() string    { return p.protocol }

func (p *defaultExposedPort) String() string {
	return fmt.Sprintf("%s:%d->%d/%s", p.hostAddress, p.hostPort, p.guestPort, p.protocol)
}

var extractionRegex = regexp.MustCompile(`^(\d{1,5}):(\d{1,5})(/[a-z]{3})?$`)

// ExposedPortFromString parses a hostPort:guestPort[/proto] specification,
// the form the runtime adapter builds from a container's port bindings.
func ExposedPortFromString(input, hostAddress string) (ExposedPort, error) {
	matches := extractionRegex.FindStringSubmatch(input)
	if matches == nil {
		return nil, fmt.Errorf("%q is not a valid host:guest port specification", input)
	}

	hostPort, err := parsedPortOrError(matches[1])
	if err != nil {
		return nil, err
	}
	guestPort, err := parsedPortOrError(matches[2])
	if err != nil {
		return nil, err
	}

	protocol := defaultProtocol
	if matches[3] != "" {
		protocol = matches[3][1:]
		if !validProtocol(protocol) {
			return nil, fmt.Errorf("value %q is not a supported protocol", protocol)
		}
	}
	if hostAddress == "" {
		hostAddress = "0.0.0.0"
	}

	return &defaultExposedPort{hostAddress: hostAddress, hostPort: hostPort, guestPort: guestPort, protocol: protocol}, nil
}

func parsedPortOrError(input string) (int, error) {
	intVal, parseErr := strconv.Atoi(input)
	if parseErr != nil {
		return 0, errors.Wrap(parseErr, "string is not a valid port number")
	}
	if !validPort(intVal) {
		return 0, fmt.Errorf("value %d is not a valid port", intVal)
	}
	return intVal, nil
}

func validPort(v int) bool { return v > 0 && v < 65536 }

func validProtocol(v string) bool { return v == "tcp" || v == "udp" }

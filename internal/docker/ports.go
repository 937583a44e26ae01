package docker

import (
	"strconv"
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// ParsePortBindings normalizes the wire-format
// {"80/tcp": [{"HostPort":"8080"}]} map into one PortMapping per binding.
func ParsePortBindings(bindings map[string][]PortBindingEntry) ([]PortMapping, error) {
	var mappings []PortMapping
	for key, entries := range bindings {
		containerPort, protocol, err := splitPortKey(key)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			hostPort, err := strconv.Atoi(entry.HostPort)
			if err != nil {
				return nil, apperr.Newf(apperr.CodeInvalidArgument, "invalid host port %q for %s", entry.HostPort, key)
			}
			mappings = append(mappings, PortMapping{
				ContainerPort: containerPort,
				HostPort:      hostPort,
				Protocol:      protocol,
			})
		}
	}
	return mappings, nil
}

// splitPortKey parses a "80/tcp" style PortBindings map key.
func splitPortKey(key string) (port int, protocol string, err error) {
	parts := strings.SplitN(key, "/", 2)
	port, convErr := strconv.Atoi(parts[0])
	if convErr != nil {
		return 0, "", apperr.Newf(apperr.CodeInvalidArgument, "invalid container port %q", key)
	}
	protocol = "tcp"
	if len(parts) == 2 && parts[1] != "" {
		protocol = parts[1]
	}
	return port, protocol, nil
}

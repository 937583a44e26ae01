package docker

import (
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// ParseBind parses a HostConfig.Binds entry of the form
// "C:\data:/data" or "C:\data:/data:ro". Windows host paths contain a
// drive-letter colon, so splitting is done from the right: the last
// colon-delimited segment is checked for "ro" first, then the remainder is
// split once more into host path and container path.
func ParseBind(spec string) (Bind, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return Bind{}, apperr.Newf(apperr.CodeInvalidArgument, "bind %q must have at least a host and container path", spec)
	}

	readOnly := false
	if len(parts) == 3 || (len(parts) == 4 && len(parts[0]) == 1) {
		last := parts[len(parts)-1]
		if last == "ro" {
			readOnly = true
			parts = parts[:len(parts)-1]
		}
	}
	if len(parts) > 3 {
		return Bind{}, apperr.Newf(apperr.CodeInvalidArgument, "bind %q has too many parts", spec)
	}

	// A single-letter first part plus a second part is a Windows drive
	// letter ("C", "data...") rejoined with its separating colon.
	var hostPath, containerPath string
	if len(parts) == 3 && len(parts[0]) == 1 {
		hostPath = parts[0] + ":" + parts[1]
		containerPath = parts[2]
	} else if len(parts) == 2 {
		hostPath = parts[0]
		containerPath = parts[1]
	} else {
		return Bind{}, apperr.Newf(apperr.CodeInvalidArgument, "bind %q could not be parsed", spec)
	}

	if hostPath == "" || containerPath == "" {
		return Bind{}, apperr.Newf(apperr.CodeInvalidArgument, "bind %q has an empty path component", spec)
	}

	return Bind{HostPath: hostPath, ContainerPath: containerPath, ReadOnly: readOnly}, nil
}

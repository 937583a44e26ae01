package wsl

import (
	"context"
	"os/exec"
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// DefaultDistro is the managed distribution name the serve command's
// --distro flag defaults to when FURUKAWA_DISTRO is not set.
const DefaultDistro = "furukawad"

// ListDistros returns the names of installed WSL distributions via
// `wsl --list --quiet`, decoding its UTF-16LE output.
func ListDistros(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "wsl", "--list", "--quiet").Output()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRuntimeWSLSetupFailed, err, "failed listing WSL distributions")
	}
	text := decodeWSLOutput(out)
	var distros []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			distros = append(distros, line)
		}
	}
	return distros, nil
}

// EnsureDistro checks that the managed distro is installed. Provisioning a
// missing distro (downloading and importing a base rootfs) is treated as
// an external collaborator's job, so this only verifies presence and
// returns a remediation-bearing error when it is absent, unless skipSetup
// suppresses even that check (FURUKAWA_SKIP_WSL_SETUP).
func EnsureDistro(ctx context.Context, distro string, skipSetup bool) error {
	if skipSetup {
		return nil
	}
	distros, err := ListDistros(ctx)
	if err != nil {
		return err
	}
	for _, d := range distros {
		if strings.EqualFold(d, distro) {
			return nil
		}
	}
	return apperr.Newf(apperr.CodeRuntimeWSLSetupFailed, "managed distro %q is not installed", distro).
		WithSuggestion("install the distro with `wsl --import` or set FURUKAWA_SKIP_WSL_SETUP")
}

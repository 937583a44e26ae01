package engine

import (
	"context"
	"strings"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/compose"
	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
)

// ComposeUp brings up every service in project in depends_on order, naming
// each container "<projectName>_<serviceName>" so ComposeDown can find them
// again by prefix, the same grouping convention docker compose itself uses.
func (e *Engine) ComposeUp(ctx context.Context, project *compose.Project, projectName string) ([]string, error) {
	order, err := project.StartOrder()
	if err != nil {
		return nil, err
	}

	var started []string
	for _, name := range order {
		svc := project.Services[name]

		imageRef := svc.Image
		if _, found, err := e.Meta.GetImageByTag(ctx, imageRef); err == nil && !found && imageRef != "" {
			if _, err := e.PullImage(ctx, imageRef); err != nil {
				return started, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed pulling image for service "+name)
			}
		}

		req := docker.ContainerCreateRequest{
			Image: imageRef,
			Cmd:   svc.Command,
			Env:   mapToEnvSlice(svc.Environment),
			HostConfig: docker.HostConfig{
				Binds: svc.Volumes,
			},
		}
		if len(svc.Ports) > 0 {
			req.HostConfig.PortBindings = map[string][]docker.PortBindingEntry{}
			for _, spec := range svc.Ports {
				containerPort, hostPort := splitPortSpec(spec)
				key := containerPort + "/tcp"
				req.HostConfig.PortBindings[key] = append(req.HostConfig.PortBindings[key], docker.PortBindingEntry{HostPort: hostPort})
			}
		}

		containerName := projectName + "_" + name
		id, err := e.CreateContainer(ctx, req, containerName)
		if err != nil {
			return started, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed creating container for service "+name)
		}
		if err := e.StartContainer(ctx, id); err != nil {
			return started, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed starting container for service "+name)
		}
		started = append(started, id)
	}
	return started, nil
}

// ComposeDown stops and removes every container whose name was created by
// a prior ComposeUp for projectName.
func (e *Engine) ComposeDown(ctx context.Context, projectName string) error {
	list, err := e.Meta.ListAny(ctx)
	if err != nil {
		return err
	}

	prefix := projectName + "_"
	var errs []error
	for _, c := range list {
		if !strings.HasPrefix(c.Config.Name, prefix) {
			continue
		}
		if c.Status == container.StatusRunning {
			if err := e.StopContainer(ctx, c.ID); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := e.RemoveContainer(ctx, c.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperr.Wrap(apperr.CodeInvalidArgument, errs[0], "compose down failed to clean up one or more containers")
	}
	return nil
}

func mapToEnvSlice(m map[string]string) []string {
	var out []string
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// splitPortSpec parses a compose "HOST:CONTAINER" or "CONTAINER" port entry.
func splitPortSpec(spec string) (containerPort, hostPort string) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 2 {
		return parts[1], parts[0]
	}
	return parts[0], parts[0]
}

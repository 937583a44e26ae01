package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
)

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var req docker.ContainerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.CodeInvalidArgument, err, "malformed container create body"))
		return
	}
	name := r.URL.Query().Get("name")

	id, err := s.Engine.CreateContainer(r.Context(), req, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, docker.ContainerCreateResponse{ID: id})
}

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "1" || r.URL.Query().Get("all") == "true"

	list, err := s.Engine.ListContainers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	summaries := make([]docker.ContainerSummary, 0, len(list))
	for _, c := range list {
		if !all && c.Status != container.StatusRunning {
			continue
		}
		summaries = append(summaries, toSummary(c))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStartContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Engine.StartContainer(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Engine.StopContainer(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInspectContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	any, err := s.Engine.InspectContainer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInspect(any))
}

func (s *Server) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Engine.RemoveContainer(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.Engine.InspectContainer(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := s.Engine.OpenContainerLog(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.docker.raw-stream")
	w.WriteHeader(http.StatusOK)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
		}
		if readErr != nil {
			return
		}
	}
}

func toSummary(c container.AnyContainer) docker.ContainerSummary {
	var ports []docker.PortSummaryItem
	for _, pm := range c.Config.PortBindings {
		ports = append(ports, docker.PortSummaryItem{
			PrivatePort: pm.ContainerPort,
			PublicPort:  pm.HostPort,
			Type:        pm.Protocol,
		})
	}
	return docker.ContainerSummary{
		ID:      c.ID,
		Names:   []string{"/" + containerDisplayName(c)},
		Image:   c.Config.Image,
		Command: strings.Join(c.Config.Cmd, " "),
		Created: c.CreatedAt.Unix(),
		State:   string(c.Status),
		Status:  statusText(c),
		Ports:   ports,
	}
}

func toInspect(c container.AnyContainer) docker.ContainerInspect {
	return docker.ContainerInspect{
		ID:      c.ID,
		Name:    "/" + containerDisplayName(c),
		Created: c.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		State: docker.ContainerInspectState{
			Status:     string(c.Status),
			Running:    c.Status == container.StatusRunning,
			Pid:        int(c.PID),
			ExitCode:   int(c.ExitCode),
			StartedAt:  c.StartedAt,
			FinishedAt: c.FinishedAt,
		},
		Config: docker.ContainerInspectConfig{
			Image: c.Config.Image,
			Cmd:   c.Config.Cmd,
			Env:   c.Config.Env,
		},
		Image: c.Config.Image,
	}
}

func containerDisplayName(c container.AnyContainer) string {
	if c.Config.Name != "" {
		return c.Config.Name
	}
	return c.ID
}

func statusText(c container.AnyContainer) string {
	switch c.Status {
	case container.StatusRunning:
		return "Up"
	case container.StatusExited:
		return "Exited (" + strconv.Itoa(int(c.ExitCode)) + ")"
	default:
		return "Created"
	}
}

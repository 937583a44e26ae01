package api

import (
	"io"
	"net/http"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/compose"
)

type composeUpResponse struct {
	ContainerIDs []string `json:"ContainerIds"`
}

// handleComposeUp implements POST /compose/up: the request body is a
// compose YAML document and ?project= names the project (defaulting to
// "default" the way docker compose does when run outside a named directory).
func (s *Server) handleComposeUp(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		project = "default"
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed reading compose body"))
		return
	}
	defer r.Body.Close()

	proj, err := compose.Parse(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ids, err := s.Engine.ComposeUp(r.Context(), proj, project)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, composeUpResponse{ContainerIDs: ids})
}

// handleComposeDown implements POST /compose/down: stops and removes every
// container a prior ComposeUp started for ?project=.
func (s *Server) handleComposeDown(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		project = "default"
	}
	if err := s.Engine.ComposeDown(r.Context(), project); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

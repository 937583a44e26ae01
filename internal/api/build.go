package api

import (
	"net/http"
)

// handleBuild implements POST /build: the request body is a tar (optionally
// gzipped) build context, ?t= names the resulting image tag, and
// ?dockerfile= optionally overrides the default "Dockerfile" context path.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("t")
	dockerfileName := r.URL.Query().Get("dockerfile")

	rec, err := s.Engine.BuildImage(r.Context(), r.Body, dockerfileName, tag)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImageSummary(rec))
}

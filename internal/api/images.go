package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/image"
)

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.ListImages(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summaries := make([]docker.ImageSummary, 0, len(list))
	for _, rec := range list {
		summaries = append(summaries, toImageSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleCreateImage(w http.ResponseWriter, r *http.Request) {
	fromImage := r.URL.Query().Get("fromImage")
	if fromImage == "" {
		writeError(w, r, apperr.New(apperr.CodeInvalidArgument, "fromImage query parameter is required"))
		return
	}
	ref := fromImage
	if tag := r.URL.Query().Get("tag"); tag != "" {
		ref = fromImage + ":" + tag
	}

	rec, err := s.Engine.PullImage(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImageSummary(rec))
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Engine.RemoveImage(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toImageSummary(rec image.Record) docker.ImageSummary {
	return docker.ImageSummary{
		ID:       rec.ID,
		ParentID: rec.ParentID,
		RepoTags: rec.RepoTags,
		Created:  rec.Created,
		Size:     rec.Size,
	}
}

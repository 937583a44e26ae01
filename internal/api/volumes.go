package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/furukawa-project/furukawad/internal/docker"
)

func (s *Server) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Engine.ListVolumes()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateVolume(w http.ResponseWriter, r *http.Request) {
	var req docker.VolumeResource
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vol, err := s.Engine.CreateVolume(req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vol)
}

func (s *Server) handleRemoveVolume(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.Engine.RemoveVolume(name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/docker"
	"github.com/furukawa-project/furukawad/internal/network"
)

func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.ListNetworks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resources := make([]docker.NetworkResource, 0, len(list))
	for _, rec := range list {
		resources = append(resources, toNetworkResource(rec))
	}
	writeJSON(w, http.StatusOK, resources)
}

func (s *Server) handleCreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req docker.NetworkCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.Engine.CreateNetwork(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, docker.NetworkCreateResponse{ID: id})
}

func (s *Server) handleInspectNetwork(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	list, err := s.Engine.ListNetworks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, rec := range list {
		if rec.ID == id || rec.Name == id {
			writeJSON(w, http.StatusOK, toNetworkResource(rec))
			return
		}
	}
	writeError(w, r, apperr.Newf(apperr.CodeNetworkNotFound, "network %q not found", id))
}

func (s *Server) handleRemoveNetwork(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Engine.RemoveNetwork(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toNetworkResource(rec network.Record) docker.NetworkResource {
	return docker.NetworkResource{ID: rec.ID, Name: rec.Name, Driver: rec.Driver, Labels: rec.Labels}
}

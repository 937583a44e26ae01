// Package api exposes the Engine Service over the Docker Engine API v1.45
// subset, using gorilla/mux for path-parameter routing: one debug log line
// per request, narrow collaborators injected through a struct, and errors
// translated at the boundary rather than deep inside a handler.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/furukawa-project/furukawad/internal/engine"
)

// Server wires an Engine into a mux.Router implementing the Docker Engine
// API v1.45 subset.
type Server struct {
	Engine *engine.Engine
	Logger hclog.Logger
}

// NewRouter builds the full route table for the given Engine.
func NewRouter(e *engine.Engine, logger hclog.Logger) *mux.Router {
	s := &Server{Engine: e, Logger: logger}
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	r.HandleFunc("/images/json", s.handleListImages).Methods(http.MethodGet)
	r.HandleFunc("/images/create", s.handleCreateImage).Methods(http.MethodPost)
	r.HandleFunc("/images/{id}", s.handleRemoveImage).Methods(http.MethodDelete)

	r.HandleFunc("/containers/create", s.handleCreateContainer).Methods(http.MethodPost)
	r.HandleFunc("/containers/json", s.handleListContainers).Methods(http.MethodGet)
	r.HandleFunc("/containers/{id}/start", s.handleStartContainer).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/stop", s.handleStopContainer).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/logs", s.handleContainerLogs).Methods(http.MethodGet)
	r.HandleFunc("/containers/{id}/json", s.handleInspectContainer).Methods(http.MethodGet)
	r.HandleFunc("/containers/{id}", s.handleRemoveContainer).Methods(http.MethodDelete)

	r.HandleFunc("/networks", s.handleListNetworks).Methods(http.MethodGet)
	r.HandleFunc("/networks/create", s.handleCreateNetwork).Methods(http.MethodPost)
	r.HandleFunc("/networks/{id}", s.handleInspectNetwork).Methods(http.MethodGet)
	r.HandleFunc("/networks/{id}", s.handleRemoveNetwork).Methods(http.MethodDelete)

	r.HandleFunc("/volumes", s.handleListVolumes).Methods(http.MethodGet)
	r.HandleFunc("/volumes/create", s.handleCreateVolume).Methods(http.MethodPost)
	r.HandleFunc("/volumes/{name}", s.handleRemoveVolume).Methods(http.MethodDelete)

	r.HandleFunc("/build", s.handleBuild).Methods(http.MethodPost)

	r.HandleFunc("/compose/up", s.handleComposeUp).Methods(http.MethodPost)
	r.HandleFunc("/compose/down", s.handleComposeDown).Methods(http.MethodPost)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.Logger.Debug("request", "method", req.Method, "path", req.URL.Path)
		next.ServeHTTP(w, req)
	})
}

package api

import (
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/docker"
)

// APIVersion is the Docker Engine API version furukawad implements.
const APIVersion = "1.45"

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	resp := docker.VersionResponse{
		Version:       "furukawad-dev",
		APIVersion:    APIVersion,
		MinAPIVersion: APIVersion,
		Os:            "windows",
		Arch:          runtime.GOARCH,
		KernelVersion: "wsl2",
		Components: []docker.VersionComponent{
			{Name: "Engine", Version: "furukawad-dev"},
		},
	}
	resp.Platform.Name = "furukawad"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.ListContainers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	images, err := s.Engine.ListImages(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var running, stopped int
	for _, c := range list {
		switch c.Status {
		case container.StatusRunning:
			running++
		case container.StatusExited:
			stopped++
		}
	}

	writeJSON(w, http.StatusOK, docker.InfoResponse{
		ID:                "furukawad",
		Containers:        len(list),
		ContainersRunning: running,
		ContainersStopped: stopped,
		Images:            len(images),
		Driver:            "wsl2-overlay",
		NCPU:              runtime.NumCPU(),
		OperatingSystem:   "Windows",
		OSType:            "linux",
		Architecture:      runtime.GOARCH,
		ServerVersion:     "furukawad-dev",
		MemTotal:          memTotalBytes(),
	})
}

// memTotalBytes reads the MemTotal line out of /proc/meminfo, the only place
// the WSL2 guest kernel exposes it. Returns 0 if the file is missing or
// unparseable rather than failing /info over a cosmetic field.
func memTotalBytes() int64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

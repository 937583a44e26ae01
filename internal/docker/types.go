// Package docker defines the wire-format request/response documents for
// the Docker Engine API v1.45 subset furukawad exposes, in the
// UpperCamelCase convention Docker's own API uses. No mapstructure tags
// here since these unmarshal straight off the wire instead of decoding
// from a generic map.
package docker

import "time"

// VersionResponse answers GET /version.
type VersionResponse struct {
	Platform struct {
		Name string `json:"Name"`
	} `json:"Platform"`
	Components    []VersionComponent `json:"Components"`
	Version       string             `json:"Version"`
	APIVersion    string             `json:"ApiVersion"`
	MinAPIVersion string             `json:"MinAPIVersion"`
	Os            string             `json:"Os"`
	Arch          string             `json:"Arch"`
	KernelVersion string             `json:"KernelVersion"`
	BuildTime     string             `json:"BuildTime"`
}

// VersionComponent is one entry of VersionResponse.Components.
type VersionComponent struct {
	Name    string `json:"Name"`
	Version string `json:"Version"`
}

// InfoResponse answers GET /info.
type InfoResponse struct {
	ID                string `json:"ID"`
	Containers        int    `json:"Containers"`
	ContainersRunning int    `json:"ContainersRunning"`
	ContainersPaused  int    `json:"ContainersPaused"`
	ContainersStopped int    `json:"ContainersStopped"`
	Images            int    `json:"Images"`
	Driver            string `json:"Driver"`
	MemTotal          int64  `json:"MemTotal"`
	NCPU              int    `json:"NCPU"`
	OperatingSystem   string `json:"OperatingSystem"`
	OSType            string `json:"OSType"`
	Architecture      string `json:"Architecture"`
	ServerVersion     string `json:"ServerVersion"`
}

// PortMapping is the normalized form of one PortBindings entry: the
// container-side port/protocol plus the host port it is bound to.
type PortMapping struct {
	ContainerPort int    `json:"ContainerPort"`
	HostPort      int    `json:"HostPort"`
	Protocol      string `json:"Protocol"`
}

// Bind is the normalized form of one HostConfig.Binds entry.
type Bind struct {
	HostPath      string `json:"HostPath"`
	ContainerPath string `json:"ContainerPath"`
	ReadOnly      bool   `json:"ReadOnly"`
}

// HostConfig is the subset of Docker's HostConfig furukawad understands.
type HostConfig struct {
	PortBindings map[string][]PortBindingEntry `json:"PortBindings"`
	Binds        []string                      `json:"Binds"`
	NetworkMode  string                         `json:"NetworkMode"`
}

// PortBindingEntry is one element of a HostConfig.PortBindings slice.
type PortBindingEntry struct {
	HostPort string `json:"HostPort"`
}

// ContainerCreateRequest is the body of POST /containers/create.
type ContainerCreateRequest struct {
	Image      string     `json:"Image"`
	Cmd        []string   `json:"Cmd"`
	Env        []string   `json:"Env"`
	HostConfig HostConfig `json:"HostConfig"`
}

// ContainerCreateResponse is the body returned by POST /containers/create.
type ContainerCreateResponse struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings"`
}

// ContainerSummary is one element of GET /containers/json.
type ContainerSummary struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	Command string            `json:"Command"`
	Created int64             `json:"Created"`
	State   string            `json:"State"`
	Status  string            `json:"Status"`
	Ports   []PortSummaryItem `json:"Ports"`
}

// PortSummaryItem is one element of ContainerSummary.Ports.
type PortSummaryItem struct {
	PrivatePort int    `json:"PrivatePort"`
	PublicPort  int    `json:"PublicPort"`
	Type        string `json:"Type"`
}

// ContainerInspect is the body of GET /containers/:id/json.
type ContainerInspect struct {
	ID      string                 `json:"Id"`
	Name    string                 `json:"Name"`
	Created string                 `json:"Created"`
	State   ContainerInspectState  `json:"State"`
	Config  ContainerInspectConfig `json:"Config"`
	Image   string                 `json:"Image"`
}

// ContainerInspectState is the State field of ContainerInspect.
type ContainerInspectState struct {
	Status     string    `json:"Status"`
	Running    bool      `json:"Running"`
	Pid        int       `json:"Pid"`
	ExitCode   int       `json:"ExitCode"`
	StartedAt  time.Time `json:"StartedAt"`
	FinishedAt time.Time `json:"FinishedAt"`
}

// ContainerInspectConfig is the Config field of ContainerInspect.
type ContainerInspectConfig struct {
	Image string   `json:"Image"`
	Cmd   []string `json:"Cmd"`
	Env   []string `json:"Env"`
}

// ImageSummary is one element of GET /images/json.
type ImageSummary struct {
	ID          string   `json:"Id"`
	ParentID    string   `json:"ParentId"`
	RepoTags    []string `json:"RepoTags"`
	Created     int64    `json:"Created"`
	Size        int64    `json:"Size"`
}

// NetworkResource is one element of GET /networks and the body of
// GET /networks/:id.
type NetworkResource struct {
	ID     string            `json:"Id"`
	Name   string            `json:"Name"`
	Driver string            `json:"Driver"`
	Labels map[string]string `json:"Labels"`
}

// NetworkCreateRequest is the body of POST /networks/create.
type NetworkCreateRequest struct {
	Name   string            `json:"Name"`
	Driver string            `json:"Driver"`
	Labels map[string]string `json:"Labels"`
}

// NetworkCreateResponse is the body returned by POST /networks/create.
type NetworkCreateResponse struct {
	ID      string `json:"Id"`
	Warning string `json:"Warning"`
}

// VolumeResource is one element of GET /volumes and the body of volume
// create/inspect.
type VolumeResource struct {
	Name       string `json:"Name"`
	Driver     string `json:"Driver"`
	Mountpoint string `json:"Mountpoint"`
}

// VolumeListResponse is the body of GET /volumes.
type VolumeListResponse struct {
	Volumes  []VolumeResource `json:"Volumes"`
	Warnings []string         `json:"Warnings"`
}

// ErrorResponse is the Docker-CLI-compatible 4xx/5xx error body.
type ErrorResponse struct {
	Message string `json:"message"`
}

// DiagnosticResponse is the richer structured error body offered to
// clients that ask for it.
type DiagnosticResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

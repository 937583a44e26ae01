package configs

import (
	"os"
	"path/filepath"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/spf13/pflag"
)

// ServerConfig provides the options the furukawad daemon command needs:
// where its data lives, which WSL distribution it manages, and which
// address it exposes the Docker Engine API subset on.
type ServerConfig struct {
	flagBase

	DataDir       string
	Distro        string
	SkipWSLSetup  bool
	ListenAddress string
}

// NewServerConfig returns a new instance of the configuration.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{}
}

// FlagSet returns an instance of the flag set for the configuration.
func (c *ServerConfig) FlagSet() *pflag.FlagSet {
	if c.initFlagSet() {
		dataDirDefault := os.Getenv("FURUKAWA_DATA_DIR")
		if dataDirDefault == "" {
			if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
				dataDirDefault = filepath.Join(localAppData, "furukawad")
			}
		}
		distroDefault := os.Getenv("FURUKAWA_DISTRO")
		if distroDefault == "" {
			distroDefault = "furukawad"
		}
		_, skipWSLSetupDefault := os.LookupEnv("FURUKAWA_SKIP_WSL_SETUP")
		c.flagSet.StringVar(&c.DataDir, "data-dir", dataDirDefault, "Data directory root (env FURUKAWA_DATA_DIR); defaults to %LOCALAPPDATA%\\furukawad")
		c.flagSet.StringVar(&c.Distro, "distro", distroDefault, "Managed WSL2 distribution name (env FURUKAWA_DISTRO)")
		c.flagSet.BoolVar(&c.SkipWSLSetup, "skip-wsl-setup", skipWSLSetupDefault, "Skip checking that the managed distribution is installed on startup (env FURUKAWA_SKIP_WSL_SETUP)")
		c.flagSet.StringVar(&c.ListenAddress, "listen-address", "127.0.0.1:2375", "Address the Docker Engine API subset listens on")
	}
	return c.flagSet
}

// Validate checks the configuration is usable, satisfying ValidatingConfig.
func (c *ServerConfig) Validate() error {
	if c.DataDir == "" {
		return apperr.New(apperr.CodeInvalidArgument, "data-dir must not be empty")
	}
	if c.Distro == "" {
		return apperr.New(apperr.CodeInvalidArgument, "distro must not be empty")
	}
	return nil
}

// MetaDBPath is the path to the SQLite metadata database within DataDir.
func (c *ServerConfig) MetaDBPath() string {
	return filepath.Join(c.DataDir, "furukawa.db")
}

// DataRoot is the path to the content-addressed and container-state
// directory tree within DataDir.
func (c *ServerConfig) DataRoot() string {
	return filepath.Join(c.DataDir, "furukawa_data")
}

// LogsRoot is the path container stdout/stderr logs are written under.
func (c *ServerConfig) LogsRoot() string {
	return filepath.Join(c.DataDir, "furukawa_logs")
}

// ContainersRoot is the path per-container rootfs directories live under.
func (c *ServerConfig) ContainersRoot() string {
	return filepath.Join(c.DataRoot(), "containers")
}

// VolumesRoot is the path named volumes' backing directories live under
// (rustker_data/volumes within DataDir).
func (c *ServerConfig) VolumesRoot() string {
	return filepath.Join(c.DataDir, "rustker_data", "volumes")
}

// LayersRoot is the path the content-addressed blob store keeps layers and
// configs under.
func (c *ServerConfig) LayersRoot() string {
	return c.DataRoot()
}

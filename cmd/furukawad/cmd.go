// Package furukawad declares the "serve" subcommand: the daemon entry
// point wiring every store and adapter into a running Docker Engine API
// subset. Package-level config vars, an initFlags() registering each
// config's FlagSet, and a run(cobraCommand, args) doing validate ->
// logger -> wire.
package furukawad

import (
	"context"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/furukawa-project/furukawad/configs"
	"github.com/furukawa-project/furukawad/internal/api"
	"github.com/furukawa-project/furukawad/internal/composer"
	"github.com/furukawa-project/furukawad/internal/engine"
	"github.com/furukawa-project/furukawad/internal/registry"
	"github.com/furukawa-project/furukawad/internal/runtime/wsl"
	"github.com/furukawa-project/furukawad/internal/runtime/wsl/portproxy"
	"github.com/furukawa-project/furukawad/internal/store/blob"
	"github.com/furukawa-project/furukawad/internal/store/meta"
	"github.com/furukawa-project/furukawad/internal/utils"
	"github.com/furukawa-project/furukawad/internal/volume"
)

// Command is the serve command declaration: furukawad serve stands up the
// Docker Engine API subset against a managed WSL2 distribution.
var Command = &cobra.Command{
	Use:   "serve",
	Short: "Run the furukawad daemon",
	Run:   serve,
	Long:  ``,
}

var (
	logConfig    = configs.NewLogginConfig()
	serverConfig = configs.NewServerConfig()
)

func initFlags() {
	Command.Flags().AddFlagSet(logConfig.FlagSet())
	Command.Flags().AddFlagSet(serverConfig.FlagSet())
}

func init() {
	initFlags()
}

func serve(cobraCommand *cobra.Command, _ []string) {
	cleanup := utils.NewDefers()
	defer cleanup.CallAll()

	rootLogger := logConfig.NewLogger("furukawad")

	validatingConfigs := []configs.ValidatingConfig{
		serverConfig,
	}
	for _, validatingConfig := range validatingConfigs {
		if err := validatingConfig.Validate(); err != nil {
			rootLogger.Error("configuration is invalid", "reason", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(serverConfig.DataRoot(), 0755); err != nil {
		rootLogger.Error("failed creating data root", "reason", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(serverConfig.ContainersRoot(), 0755); err != nil {
		rootLogger.Error("failed creating containers root", "reason", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(serverConfig.VolumesRoot(), 0755); err != nil {
		rootLogger.Error("failed creating volumes root", "reason", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(serverConfig.LogsRoot(), 0755); err != nil {
		rootLogger.Error("failed creating logs root", "reason", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := wsl.EnsureDistro(ctx, serverConfig.Distro, serverConfig.SkipWSLSetup); err != nil {
		rootLogger.Error("managed WSL distribution is not ready", "reason", err)
		os.Exit(1)
	}

	metaStore, err := meta.Open(serverConfig.MetaDBPath())
	if err != nil {
		rootLogger.Error("failed opening metadata store", "reason", err)
		os.Exit(1)
	}
	cleanup.Add(func() {
		if err := metaStore.Close(); err != nil {
			rootLogger.Warn("failed closing metadata store", "reason", err)
		}
	})

	blobStore, err := blob.New(serverConfig.LayersRoot(), rootLogger.Named("blob"))
	if err != nil {
		rootLogger.Error("failed opening content-addressed blob store", "reason", err)
		os.Exit(1)
	}

	volumeStore, err := volume.New(serverConfig.VolumesRoot())
	if err != nil {
		rootLogger.Error("failed opening volume store", "reason", err)
		os.Exit(1)
	}

	registryClient := registry.New()

	adapterLogger := rootLogger.Named("wsl")
	adapter := &wsl.Adapter{
		Distro:         serverConfig.Distro,
		ContainersRoot: serverConfig.ContainersRoot(),
		LogsRoot:       serverConfig.LogsRoot(),
		Composer:       composer.New(blobStore, adapterLogger),
		Images: func(imageRef string) ([]string, bool, error) {
			rec, found, err := metaStore.GetImageByTag(ctx, imageRef)
			if err != nil || !found {
				return nil, found, err
			}
			return rec.Layers, true, nil
		},
		Ports:  portproxy.NewManager(adapterLogger),
		Logger: adapterLogger,
	}

	eng, err := engine.New(metaStore, blobStore, registryClient, adapter, volumeStore,
		serverConfig.ContainersRoot(), serverConfig.LogsRoot(), rootLogger.Named("engine"))
	if err != nil {
		rootLogger.Error("failed constructing engine", "reason", err)
		os.Exit(1)
	}

	router := api.NewRouter(eng, rootLogger.Named("api"))

	rootLogger.Info("furukawad listening", "address", serverConfig.ListenAddress)
	if err := http.ListenAndServe(serverConfig.ListenAddress, router); err != nil {
		rootLogger.Error("server exited", "reason", err)
		os.Exit(1)
	}
}

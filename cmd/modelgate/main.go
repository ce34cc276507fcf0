// Command modelgate runs the inference control plane: an OpenAI-compatible
// HTTP surface in front of a dynamically loaded llama.cpp child process or
// a forwarded remote API, per spec.md's component design.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/internal/argflags"
	"github.com/modelgate/modelgate/internal/catalogue"
	"github.com/modelgate/modelgate/internal/child"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/cpu"
	"github.com/modelgate/modelgate/internal/engine"
	"github.com/modelgate/modelgate/internal/httpapi"
	"github.com/modelgate/modelgate/internal/logging"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/remote"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/modelgate/modelgate/internal/routerstate"
	"github.com/modelgate/modelgate/internal/settings"
)

const banner = `
 __  __         _       _  ____       _
|  \/  |___  __| | ___ | |/ ___| __ _| |_ ___
| |\/| / _ \/ _` + "`" + ` |/ _ \| | |  _ / _` + "`" + ` | __/ _ \
| |  | | (_) | (_| |  __/| | |_| | (_| | ||  __/
|_|  |_\___/ \__,_|\___||_|\____|\__,_|\__\___|
`

func main() {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "modelgate",
		Short: "Local LLM inference control plane",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}

	serve.Flags().StringVar(&cfg.Host, "host", envOrDefault("MODELGATE_HOST", "0.0.0.0"), "bind address")
	serve.Flags().IntVar(&cfg.Port, "port", 8080, "bind port")
	serve.Flags().StringVar(&cfg.LlamaServerPath, "llama-server", envOrDefault("MODELGATE_LLAMA_SERVER", "llama-server"), "path to the llama.cpp server executable")
	serve.Flags().StringVar(&cfg.ExecVariant, "exec-variant", "", "execution variant override (defaults to CPU-topology detection)")
	serve.Flags().StringVar(&cfg.SettingsFile, "settings-file", "", "path to a settings/aliases file (unset: empty catalogue)")
	serve.Flags().StringVar(&cfg.CredentialsFile, "credentials-file", "", "path to a remote-alias credentials file")
	serve.Flags().BoolVar(&cfg.Debug, "debug", false, "enable debug-level logging")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cfg *config.Config) error {
	if err := logging.Init(cfg.Debug); err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.Named("main")

	fmt.Fprint(os.Stdout, banner)

	topo, err := cpu.Detect()
	if err != nil {
		log.Warnw("CPU topology detection failed, continuing with defaults", "err", err)
		topo = nil
	} else {
		log.Infow("detected CPU topology", "summary", cpu.FeatureSummary(topo))
	}

	var setOpts []settings.Option
	if cfg.ExecVariant != "" {
		setOpts = append(setOpts, settings.WithExecVariant(cfg.ExecVariant))
	}
	set := settings.NewStaticService(setOpts...)

	cat := catalogue.NewMemoryService()
	if cfg.SettingsFile != "" {
		log.Warnw("settings-file loading is not implemented by this build; booting with an empty catalogue", "path", cfg.SettingsFile)
	}

	flags := argflags.NewStore(topo)
	factory := &child.ProcessFactory{}
	eng := engine.New(cat, set, factory, cfg.LlamaServerPath, engine.WithExtraArgs(flags.Args))

	mc := metrics.NewCollector()
	eng.AddStateListener(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventStarted:
			mc.RecordModelLoad()
		case engine.EventStopped:
			mc.RecordModelUnload()
		case engine.EventChatCompletionDispatched:
			mc.SetLoadedAlias(ev.Alias)
		}
	})

	remoteClient := remote.NewClient()
	r := router.New(cat, eng, remoteClient, router.WithDispatchObserver(mc.RecordDispatch))
	state := routerstate.New(eng, r)

	srv := httpapi.NewServer(state, mc, flags)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Infow("starting server", "addr", addr, "exec_variant", set.ExecVariant())
	return srv.Run(addr)
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

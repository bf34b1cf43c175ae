package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beeper/persona-bridge/pkg/aiprovider"
	"github.com/beeper/persona-bridge/pkg/bridge"
	"github.com/beeper/persona-bridge/pkg/commandregistry"
	"github.com/beeper/persona-bridge/pkg/config"
	"github.com/beeper/persona-bridge/pkg/cron"
	"github.com/beeper/persona-bridge/pkg/delivery"
	"github.com/beeper/persona-bridge/pkg/gateway"
	"github.com/beeper/persona-bridge/pkg/metrics"
	"github.com/beeper/persona-bridge/pkg/persona"
	"github.com/beeper/persona-bridge/pkg/revolt"
)

// Information to find out exactly which commit the bridge was built from.
// These are filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type options struct {
	configPath string
	envFile    string
	generate   bool
	noUpdate   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "persona-bridge",
		Short:         "Realtime Revolt bot answering as Shapes personas",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Tag, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.generate {
				if err := config.Generate(opts.configPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote example config to %s\n", opts.configPath)
				return nil
			}
			return run(cmd.Context(), opts)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVarP(&opts.noUpdate, "no-update", "n", false, "don't rewrite the config file with new defaults")
	root.Flags().BoolVarP(&opts.generate, "generate", "g", false, "write the example config to --config and exit")

	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the config without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config OK: %d personas with keys, scope=%s, identity=%s\n",
				len(cfg.PersonaKeys()), cfg.Bot.Scope, cfg.Bot.Identity)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), root.Version)
		},
	})
	return root
}

func loadConfig(opts options) (*config.Config, error) {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}
	cfg, err := config.Load(opts.configPath, !opts.noUpdate)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func run(parent context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting persona bridge")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	personas, err := persona.NewRegistry(cfg.PersonaKeys(), cfg.PersonaDisplays(), log)
	if err != nil {
		return err
	}
	machineCfg, err := cfg.MachineConfig()
	if err != nil {
		return err
	}
	provider, err := aiprovider.NewShapesProvider(cfg.ShapesConfig(), log)
	if err != nil {
		return err
	}

	client := revolt.NewClient(cfg.Revolt.APIURL, cfg.Revolt.Token, log)
	pipeline := delivery.NewPipeline(client, cfg.PipelineConfig(), log, m)
	deletions := delivery.NewScheduler(client, log, m)
	defer deletions.Stop()
	avatars := persona.NewAvatarResolver(&http.Client{}, log)

	machine := persona.NewMachine(personas, machineCfg, persona.Deps{
		Poster:    pipeline,
		Transport: client,
		Deletions: deletions,
		Avatars:   avatars,
		Metrics:   m,
	}, log)
	br := bridge.New(bridge.Config{
		MediaBase: cfg.Revolt.MediaURL,
		Owners:    commandregistry.NewOwners(cfg.Bot.Owners...),
	}, client, provider, pipeline, machine, log, m)

	gwCfg := cfg.GatewayConfig()
	gwCfg.Prepare = func(ctx context.Context) error {
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch own user: %w", err)
		}
		br.SetSelfID(self.ID)
		log.Info().Str("user_id", self.ID).Str("username", self.Tag()).Msg("Identified as bot user")
		return nil
	}
	gw := gateway.New(gwCfg, br, log, gateway.WithMetrics(m))

	m.GaugeFunc("stream_connected", "Whether the realtime stream is connected.", func() float64 {
		if gw.Connected() {
			return 1
		}
		return 0
	})
	m.GaugeFunc("pending_deletions", "Delayed deletions waiting to fire.", func() float64 {
		return float64(deletions.Len())
	})

	jobs := cron.NewService(log)
	if err = jobs.Add("avatar_refresh", cfg.Bot.AvatarRefresh, avatars.Reset); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gw.Run(ctx) })
	g.Go(func() error { return jobs.Run(ctx) })
	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Listen, reg, log) })
	}
	err = g.Wait()
	log.Info().Msg("Persona bridge stopped")
	return err
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	stopShutdown := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stopShutdown()

	log.Info().Str("listen", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

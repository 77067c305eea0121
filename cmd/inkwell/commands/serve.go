package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell/internal/config"
	"github.com/inkwell-ai/inkwell/internal/event"
	"github.com/inkwell-ai/inkwell/internal/logging"
	"github.com/inkwell-ai/inkwell/internal/provider"
	"github.com/inkwell-ai/inkwell/internal/sample"
	"github.com/inkwell-ai/inkwell/internal/server"
	"github.com/inkwell-ai/inkwell/internal/session"
	"github.com/inkwell-ai/inkwell/internal/storage"
	"github.com/inkwell-ai/inkwell/internal/store"
)

var (
	servePort     int
	serveHostname string
	serveDataDir  string
	serveSamples  string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Inkwell server",
	Long: `Start the Inkwell backend server.

The server exposes the book/chapter/persona HTTP API, the /suggest
WebSocket endpoint for streaming suggestions, and the /event SSE feed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Data directory")
	serveCmd.Flags().StringVar(&serveSamples, "sample-dir", "", "Sample fixture directory")
	serveCmd.Flags().BoolVar(&serveWatch, "watch-samples", false, "Reload sample fixtures on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})
	log := logging.For("main")
	log.Info().Str("version", Version).Str("dataDir", cfg.DataDir).Msg("starting inkwell")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	st := store.New(storage.New(cfg.DataDir))
	bus := event.NewBus()
	defer bus.Close()

	if cfg.SampleDir != "" {
		loader := sample.NewLoader(st, cfg.SampleDir)
		if err := loader.Load(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to load sample data")
		} else if cfg.WatchSamples {
			if err := loader.Watch(); err != nil {
				log.Warn().Err(err).Msg("failed to watch sample fixtures")
			} else {
				defer loader.Stop()
			}
		}
	}

	prov := buildProvider(cfg)
	runner := session.NewRunner(st, bus)

	srvCfg := server.DefaultConfig()
	srvCfg.Port = cfg.Port
	srvCfg.Hostname = cfg.Hostname
	srv := server.New(srvCfg, st, runner, prov, bus)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
	return nil
}

// applyServeFlags lets command-line flags override file and environment
// configuration.
func applyServeFlags(cfg *config.Config) {
	if servePort > 0 {
		cfg.Port = servePort
	}
	if serveHostname != "" {
		cfg.Hostname = serveHostname
	}
	if serveDataDir != "" {
		cfg.DataDir = serveDataDir
	}
	if serveSamples != "" {
		cfg.SampleDir = serveSamples
	}
	if serveWatch {
		cfg.WatchSamples = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logPretty {
		cfg.LogPretty = true
	}
}

// buildProvider constructs the configured generation provider. The scripted
// provider keeps the whole wire usable offline.
func buildProvider(cfg *config.Config) provider.Provider {
	if cfg.Provider.Kind == config.ProviderHTTP {
		return provider.NewHTTPProvider(provider.HTTPConfig{
			BaseURL:        cfg.Provider.BaseURL,
			APIKey:         cfg.Provider.APIKey,
			Model:          cfg.Provider.Model,
			MaxAttempts:    cfg.Provider.MaxAttempts,
			ConnectTimeout: time.Duration(cfg.Provider.ConnectTimeout) * time.Second,
			ReadTimeout:    time.Duration(cfg.Provider.ReadTimeout) * time.Second,
		})
	}

	return &provider.ScriptedProvider{
		ScriptFn: func(req provider.Request) []provider.Event {
			return provider.EchoScript(req.Prompt)
		},
		Delay: 30 * time.Millisecond,
	}
}

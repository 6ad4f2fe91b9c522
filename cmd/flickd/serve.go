package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"flickd/internal/config"
	"flickd/internal/httpapi"
	"flickd/internal/notify"
	"flickd/internal/session"
	"flickd/internal/sim"
)

type serveFlags struct {
	configPath string
	envFile    string
	addr       string
	logLevel   string
	simulate   bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr))
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (yaml, json or toml); searched in ./ and ~/.config/flickd when empty")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading FLICKD_* variables")
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&f.simulate, "simulate", true, "use simulated classifier, headset and actuator")
	return cmd
}

// resolveConfig layers file, environment and flags, in that order.
func resolveConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", f.envFile, err)
		}
	}
	var cfg config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, _, _, err = config.Discover()
	}
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("simulate") {
		cfg.Simulate = f.simulate
	}
	return cfg, cfg.Validate()
}

func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// app holds the wired daemon.
type app struct {
	cfg        config.Config
	orch       *session.Orchestrator
	classifier *sim.Classifier
	headset    *sim.Headset
	hub        *notify.Hub
	handler    http.Handler
	detach     func()
}

func newApp(cfg config.Config, log *zerolog.Logger, reg prometheus.Registerer) (*app, error) {
	if !cfg.Simulate {
		return nil, errors.New("no hardware drivers are built in; run with simulate enabled")
	}
	headset := sim.NewHeadset(cfg.Simulator.HeadsetName, cfg.Simulator.SampleRate, log)
	classifier := sim.NewClassifier(sim.ClassifierConfig{
		ActionProbability: cfg.Simulator.ActionProbability,
		RequireTraining:   cfg.Simulator.RequireTraining,
		Seed:              cfg.Simulator.Seed,
		Logger:            log,
	})
	var actuator session.Actuator = sim.NewLogActuator(cfg.ActuatorDelay(), log)
	if d := cfg.ActuatorMinInterval(); d > 0 {
		actuator = session.NewThrottledActuator(actuator, d)
	}

	scfg := cfg.ToSession()
	scfg.Classifier = classifier
	scfg.Source = headset
	scfg.Actuator = actuator
	scfg.Logger = log
	orch, err := session.New(scfg)
	if err != nil {
		_ = classifier.Close()
		return nil, err
	}
	if err := reg.Register(orch.ListenerFailuresCollector()); err != nil {
		_ = orch.Close()
		_ = classifier.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	hcfg := notify.HubConfig{
		SendBuffer:   cfg.Events.SendBuffer,
		WriteTimeout: time.Duration(cfg.Events.WriteTimeoutSeconds * float64(time.Second)),
		PingInterval: time.Duration(cfg.Events.PingIntervalSeconds * float64(time.Second)),
		CheckOrigin:  sameOrigin,
		Commands:     notify.NewRouter(orch, log),
		Logger:       log,
	}
	if cfg.Events.AllowAllOrigins {
		hcfg.CheckOrigin = nil
	}
	hub := notify.NewHub(hcfg)
	detach := notify.Bridge(orch.Store(), hub)

	httpapi.SetLogger(*log)
	httpapi.SetActuatorTestTimeout(scfg.ActuatorTimeout + time.Second)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)

	if cfg.Simulator.AutoStartHeadset {
		headset.Start()
	}
	return &app{
		cfg:        cfg,
		orch:       orch,
		classifier: classifier,
		headset:    headset,
		hub:        hub,
		handler:    httpapi.NewMux(orch, httpapi.Options{Events: hub, Headset: headset}),
		detach:     detach,
	}, nil
}

// Close releases everything newApp started.
func (a *app) Close() {
	a.hub.Close()
	a.detach()
	_ = a.orch.Close()
	_ = a.classifier.Close()
	a.headset.Stop()
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	a, err := newApp(cfg, &log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	httpapi.SetShutdownContext(gctx)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("source", a.headset.Name()).Msg("flickd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.orch.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		// hijacked WebSocket connections are not closed by Shutdown
		a.hub.Close()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("flickd stopped")
	return err
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

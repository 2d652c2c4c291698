package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	tphttp "github.com/halverson/ticketpilot/internal/adapter/http"
	tpnats "github.com/halverson/ticketpilot/internal/adapter/nats"
	"github.com/halverson/ticketpilot/internal/adapter/otel"
	"github.com/halverson/ticketpilot/internal/adapter/postgres"
	"github.com/halverson/ticketpilot/internal/adapter/ristretto"
	"github.com/halverson/ticketpilot/internal/adapter/scripted"
	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/config"
	"github.com/halverson/ticketpilot/internal/domain/pipeline"
	"github.com/halverson/ticketpilot/internal/logger"
	"github.com/halverson/ticketpilot/internal/middleware"
	"github.com/halverson/ticketpilot/internal/port/agentcall"
	"github.com/halverson/ticketpilot/internal/port/broadcast"
	"github.com/halverson/ticketpilot/internal/port/runstore"
	"github.com/halverson/ticketpilot/internal/port/ticketsource"
	"github.com/halverson/ticketpilot/internal/resilience"
	"github.com/halverson/ticketpilot/internal/secrets"
	"github.com/halverson/ticketpilot/internal/service"
	"github.com/halverson/ticketpilot/internal/tool"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)
	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"agent_backend", cfg.Agent.Backend,
	)

	ctx := context.Background()

	shutdownTracer := otel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	// --- Infrastructure ---

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	var store runstore.Store = postgres.NewStore(pool)

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()
	store = ristretto.NewCachingStore(store, cache, cfg.Cache.TTL)

	queue, err := tpnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected")

	// --- Agent backend and ticket sources ---

	scripted.Register()
	if err := resolveAgentCredentials(cfg.Agent.Config); err != nil {
		return fmt.Errorf("agent credentials: %w", err)
	}
	backend, err := agentcall.New(cfg.Agent.Backend, cfg.Agent.Config)
	if err != nil {
		return fmt.Errorf("agent backend: %w", err)
	}

	tpnats.RegisterTicketSource(queue)
	sources := make(map[string]ticketsource.Source)
	for _, name := range []string{"queue"} {
		src, err := ticketsource.New(name, nil)
		if err != nil {
			return fmt.Errorf("ticket source %s: %w", name, err)
		}
		sources[src.Name()] = src
	}

	// --- Pipeline ---

	def, err := loadPipeline(cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	slog.Info("pipeline loaded", "id", def.ID, "steps", len(def.Steps))

	// --- Services ---

	hub := ws.NewHub()
	events := broadcast.Multi{hub, tpnats.NewBroadcaster(queue, log)}
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breaker.RequireProbes(cfg.Breaker.HalfOpenProbes)

	engine := service.NewEngine(store, backend,
		breaker,
		events,
		service.EngineConfig{
			Pipeline:       def,
			TestIterations: cfg.Pipeline.TestIterations,
			Sandbox: tool.SandboxOptions{
				CommandTimeout: cfg.Sandbox.CommandTimeout,
				TestTimeout:    cfg.Sandbox.TestTimeout,
				SearchLimit:    cfg.Sandbox.SearchLimit,
			},
		},
		log,
	)
	engine.SetMetrics(metrics)
	engine.SetTicketResolver(func(name string) ticketsource.Source {
		return sources[name]
	})

	sched := service.NewScheduler(engine, cfg.Pipeline.MaxConcurrent, log)
	defer sched.Shutdown()

	runSvc := service.NewRunService(store, sched, log)
	runSvc.SetQueue(queue)
	cpSvc := service.NewCheckpointService(store, events, sched, log)

	// Re-enqueue runs a previous process left behind.
	if err := sched.Recover(ctx); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	// --- HTTP ---

	handlers := &tphttp.Handlers{
		Runs:        runSvc,
		Checkpoints: cpSvc,
		Hub:         hub,
	}

	r := chi.NewRouter()
	r.Use(tphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tphttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	tphttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveAgentCredentials reads the stored credential blob named by the
// backend config, if any, and replaces it with the extracted token.
// Expired or malformed credentials fail startup rather than the first run.
func resolveAgentCredentials(agentCfg map[string]string) error {
	path, ok := agentCfg["credentials_file"]
	if !ok || path == "" {
		return nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	token, ok := secrets.Lookup(blob, time.Now())
	if !ok {
		return fmt.Errorf("credential in %s is missing or expired", path)
	}
	delete(agentCfg, "credentials_file")
	agentCfg["token"] = token
	return nil
}

// loadPipeline resolves the pipeline definition: a custom directory takes
// precedence, then the built-in default. The configured retry budget is
// applied to steps that do not set their own.
func loadPipeline(cfg config.Pipeline) (pipeline.Definition, error) {
	def := pipeline.Default()
	if cfg.CustomDir != "" {
		defs, err := pipeline.LoadFromDirectory(cfg.CustomDir)
		if err != nil {
			return pipeline.Definition{}, err
		}
		found := false
		for _, d := range defs {
			if d.ID == cfg.Definition {
				def = d
				found = true
				break
			}
		}
		if !found && cfg.Definition != "" && cfg.Definition != def.ID {
			return pipeline.Definition{}, fmt.Errorf("definition %q not found in %s", cfg.Definition, cfg.CustomDir)
		}
	}

	for i := range def.Steps {
		if def.Steps[i].MaxAttempts == 0 {
			def.Steps[i].MaxAttempts = cfg.MaxAttempts
		}
	}
	return def, def.Validate()
}

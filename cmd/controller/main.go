// Package main is the entry point for the sandplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"sandplane/internal/auth"
	"sandplane/internal/config"
	"sandplane/internal/controller"
	"sandplane/internal/controller/middleware"
	"sandplane/internal/events"
	"sandplane/internal/gateway"
	"sandplane/internal/gateway/cloudformation"
	"sandplane/internal/gateway/docker"
	"sandplane/internal/gateway/kubernetes"
	"sandplane/internal/lifecycle"
	"sandplane/internal/logger"
	"sandplane/internal/observability"
	"sandplane/internal/scheduler"
	"sandplane/internal/store"
	"sandplane/internal/store/memory"
	"sandplane/internal/store/postgres"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: sandplane.yaml in current directory)")
	flag.Parse()

	if err := run(*configPath, *migrateFlag); err != nil {
		fmt.Fprintf(os.Stderr, "sandplane controller: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewWithLevel(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := openStore(ctx, cfg, migrate, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "sandplane-controller", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Queried only when scraped.
	meter := otel.Meter("sandplane-controller")
	_, err = meter.Int64ObservableGauge("sandplane.sandboxes.active",
		metric.WithDescription("Sandboxes currently holding infrastructure"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			active, err := st.ListActive(ctx)
			if err != nil {
				log.Warn("failed to count active sandboxes", "error", err)
				return nil // Don't fail the scrape on DB error
			}
			obs.Observe(int64(len(active)))
			return nil
		}),
	)
	if err != nil {
		log.Warn("failed to register active sandboxes metric", "error", err)
	}

	// Provisioning backend
	gw, err := newGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	if c, ok := gw.(io.Closer); ok {
		defer c.Close()
	}

	// Lifecycle events
	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, "sandplane-controller", log)
		if err != nil {
			return err
		}
		publisher = nc
	}
	defer publisher.Close()

	sched := scheduler.New(log)
	manager := lifecycle.New(gw, st, sched, lifecycle.Config{
		TTL:            cfg.SandboxTTL,
		GatewayTimeout: cfg.Provisioner.Timeout,
		DestroyRetries: cfg.Expiry.DestroyRetries,
		RetryBackoff:   cfg.Expiry.RetryBackoff,
	}, log, lifecycle.WithPublisher(publisher))

	// Expiry jobs live in memory, so rebuild them from the store first.
	if _, err := manager.Reconcile(ctx); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(
		middleware.WithLimit(cfg.Auth.RateLimit, cfg.Auth.RateBurst),
	)
	defer limiter.Close()

	opts := controller.Options{
		Lifecycle:      manager,
		InternalSecret: cfg.InternalSecret,
		Metrics:        metricsHandler,
		WriteTimeout:   cfg.Provisioner.Timeout + 30*time.Second,
		Logger:         log,
		RateLimiter:    limiter,
	}
	if !cfg.Auth.Disabled {
		validator := auth.NewUserInfoValidator(&http.Client{Timeout: 10 * time.Second}, cfg.Auth.UserInfoURL, cfg.Auth.CacheTTL)
		defer validator.Close()
		opts.Validator = validator

		if cfg.Auth.ClientID != "" {
			opts.Login = auth.NewOAuth(auth.OAuthConfig{
				ClientID:     cfg.Auth.ClientID,
				ClientSecret: cfg.Auth.ClientSecret,
				RedirectURL:  cfg.Auth.RedirectURL,
			}, validator)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	log.Info("sandplane controller started",
		"addr", addr,
		"driver", cfg.Provisioner.Driver,
		"ttl", cfg.SandboxTTL,
	)

	err = g.Wait()
	log.Info("shutting down, waiting for in-flight expiries")
	sched.Wait()
	log.Info("controller exited properly")
	return err
}

func openStore(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) (store.SandboxStore, func(), error) {
	if cfg.UsesMemoryStore() {
		log.Warn("using in-memory store, records are lost on restart")
		return memory.New(), func() {}, nil
	}

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	if migrate {
		log.Info("running database migrations")
		if err := postgres.Migrate(pg.DB()); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("migrations completed successfully")
	}

	return pg, func() { pg.Close() }, nil
}

func newGateway(ctx context.Context, cfg *config.Config, log *slog.Logger) (gateway.Gateway, error) {
	switch cfg.Provisioner.Driver {
	case config.DriverKubernetes:
		return kubernetes.New(kubernetes.Config{
			Namespace:      cfg.Kubernetes.Namespace,
			Image:          cfg.Kubernetes.Image,
			ServiceAccount: cfg.Kubernetes.ServiceAccount,
			CPULimit:       cfg.Kubernetes.CPULimit,
			MemoryLimit:    cfg.Kubernetes.MemoryLimit,
		}, log)
	case config.DriverDocker:
		return docker.New(docker.Config{Image: cfg.Docker.Image}, log)
	default:
		return cloudformation.New(ctx, cloudformation.Config{
			Region:       cfg.AWS.Region,
			InstanceType: cfg.AWS.InstanceType,
			ImageID:      cfg.AWS.ImageID,
		}, log)
	}
}

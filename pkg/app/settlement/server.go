// Package settlement implements app.Runner for the settlement service process.
package settlement

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/bridge-settlement/pkg/app/http"
	"github.com/chainsafe/bridge-settlement/pkg/config"
	"github.com/chainsafe/bridge-settlement/pkg/liquidity"
	"github.com/chainsafe/bridge-settlement/pkg/pgutil"
	"github.com/chainsafe/bridge-settlement/pkg/ratelimit"
	"github.com/chainsafe/bridge-settlement/pkg/settlement"
	"github.com/chainsafe/bridge-settlement/pkg/signature"
	"github.com/chainsafe/bridge-settlement/pkg/store"
	"github.com/chainsafe/bridge-settlement/pkg/transfer"
	"github.com/chainsafe/bridge-settlement/pkg/validation"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// Server holds configuration for the settlement process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new settlement Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run wires the settlement core, starts the background engine and serves the HTTP API.
// It blocks until an OS shutdown signal is received or the HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bridge settlement service")

	var db *bun.DB
	if cfg.Database.Enabled {
		db, err = pgutil.ConnectDB(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect settlement db: %w", err)
		}
		defer func() { _ = db.Close() }()
	} else {
		logger.Warn("Database disabled, settlement state is kept in memory only")
	}

	c, err := build(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.engine.Start(ctx); err != nil {
		return fmt.Errorf("start settlement engine: %w", err)
	}
	defer c.engine.Stop()

	return apphttp.ServeAndWait(ctx, newRouter(cfg, c.service, c.engine, logger), logger, &cfg.Server)
}

// components is the wired settlement core.
type components struct {
	limiter  *ratelimit.Limiter
	pools    *liquidity.Manager
	machine  *transfer.Machine
	service  settlement.Service
	engine   *settlement.Engine
	adapters *adapters
}

func (c *components) close() {
	c.adapters.close()
}

// build wires every component from cfg. db may be nil, in which case nothing is persisted.
func build(ctx context.Context, cfg *config.Config, db *bun.DB, logger *zap.Logger) (*components, error) {
	registry, err := newRegistry(&cfg.Bridge)
	if err != nil {
		return nil, fmt.Errorf("build chain registry: %w", err)
	}
	estimator, err := newEstimator(&cfg.Bridge, registry)
	if err != nil {
		return nil, fmt.Errorf("build fee estimator: %w", err)
	}

	signers, err := newSignerRegistry(cfg.Signers)
	if err != nil {
		return nil, fmt.Errorf("register signers: %w", err)
	}
	checker := signature.NewChecker(signers, signature.DefaultSuite())
	logger.Info("Signers registered", zap.Strings("active", signers.ActiveIDs()))

	limiter, err := ratelimit.New(ratelimit.Config{
		Capacity:     cfg.RateLimit.Capacity,
		Window:       cfg.RateLimit.Window,
		IdleMultiple: cfg.RateLimit.IdleMultiple,
	})
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	var st store.Store
	poolOpts := []liquidity.Option{}
	machineOpts := []transfer.Option{}
	if db != nil {
		st = store.NewStore(db)
		poolOpts = append(poolOpts, liquidity.WithStore(st))
		machineOpts = append(machineOpts, transfer.WithStore(st))
	}

	pools := liquidity.NewManager(logger.Named("liquidity"), poolOpts...)
	if st != nil {
		if err := restore(ctx, st, pools); err != nil {
			return nil, err
		}
	}
	if err := seedPools(ctx, cfg.Bridge.Pools, pools, logger); err != nil {
		return nil, err
	}

	adapters, err := newAdapters(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	thresholds, err := newPipelineConfig(&cfg.Bridge)
	if err != nil {
		adapters.close()
		return nil, fmt.Errorf("build validation config: %w", err)
	}
	pipeline := validation.NewPipeline(thresholds, limiter, pools, checker, registry, estimator, logger.Named("validation"))

	machineOpts = append(machineOpts, transfer.WithQuoter(settlement.NewQuoter(estimator, pools)))
	machine, err := transfer.NewMachine(transfer.Config{
		ExecutionDeadline:   cfg.Settlement.ExecutionDeadline,
		ConfirmationTimeout: cfg.Settlement.ConfirmationTimeout,
		StaleSignatureAge:   cfg.Bridge.StaleSignatureAge,
		LockTimeout:         cfg.Settlement.LockTimeout,
	}, checker, pools, adapters.router, logger.Named("transfer"), machineOpts...)
	if err != nil {
		adapters.close()
		return nil, fmt.Errorf("create transfer machine: %w", err)
	}
	if st != nil {
		loaded, err := st.LoadTransfers(ctx)
		if err != nil {
			adapters.close()
			return nil, fmt.Errorf("load transfers: %w", err)
		}
		logger.Info("Restored in-flight transfers", zap.Int("count", machine.Restore(loaded)))
	}

	engine, err := settlement.NewEngine(settlement.EngineConfig{
		SweepInterval: cfg.Settlement.SweepInterval,
		AutoSettle:    cfg.Settlement.AutoSettle,
	}, machine, limiter, logger.Named("engine"))
	if err != nil {
		adapters.close()
		return nil, fmt.Errorf("create settlement engine: %w", err)
	}

	service := settlement.NewLog(settlement.NewService(pipeline, machine, pools, signers), logger)

	return &components{
		limiter:  limiter,
		pools:    pools,
		machine:  machine,
		service:  service,
		engine:   engine,
		adapters: adapters,
	}, nil
}

func restore(ctx context.Context, st store.Store, pools *liquidity.Manager) error {
	snapshots, reservations, err := st.LoadPools(ctx)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}
	if err := pools.Restore(snapshots, reservations); err != nil {
		return fmt.Errorf("restore pools: %w", err)
	}
	return nil
}

func newRouter(cfg *config.Config, service settlement.Service, engine *settlement.Engine, logger *zap.Logger) http.Handler {
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultHTTPMiddlewareTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !engine.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		settlement.RegisterRoutes(r, service, logger)
		settlement.RegisterOperatorRoutes(r, service, cfg.Settlement.OperatorToken, logger)
	})
	return r
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/config"
	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/infra/memory"
	"puzzle-scoring-service/internal/infra/postgres"
	rediscache "puzzle-scoring-service/internal/infra/redis"
	"puzzle-scoring-service/internal/logger"
	"puzzle-scoring-service/internal/metrics"
	transport "puzzle-scoring-service/internal/transport/http"
)

const serviceName = "puzzle-scoring-service"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(serviceName, cfg.Log.Level)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service, cleanup, err := buildService(ctx, cfg, log, reg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	// Prime the ranking, feed and mirror before accepting traffic.
	if err := service.Ranking.Rebuild(ctx); err != nil {
		log.WithError(err).Warn("initial ranking rebuild failed")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, reg, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting scoring service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService wires storage, caches and locks from cfg. Without postgres.url
// the service runs on the in-process store seeded with sample challenges.
func buildService(ctx context.Context, cfg config.Config, log logrus.FieldLogger, reg prometheus.Registerer, migrate bool) (*app.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		store  app.Store
		loader memory.ChallengeLoader
	)
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		if migrate {
			if err := migrateDB(ctx, db, log); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		store = postgres.NewStore(db)
		loader = postgres.NewChallengeLoader(pool)
	} else {
		mem := memory.NewStore()
		for _, c := range sampleChallenges() {
			if err := mem.PutChallenge(c); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		log.Warn("postgres.url not set, using in-memory store with sample challenges")
		store, loader = mem, mem
	}

	challengeTTL := config.TTLDuration(cfg.Challenges.TTL, 10*time.Minute)
	var (
		challenges app.ChallengeRepository
		locks      app.KeyLocker
		mirror     app.RankingMirror
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		challenges = rediscache.NewChallengeRepository(client, loader, challengeTTL)
		locks = rediscache.NewKeyLocker(client, cfg.LockTTL())
		mirror = rediscache.NewRankingMirror(client)
	} else {
		challenges = memory.NewChallengeRepository(loader, challengeTTL)
		locks = memory.NewKeyLocker()
	}

	service := app.NewService(store, challenges, locks, app.Options{
		Policy: app.ScoringPolicy{
			BonusWindow: cfg.BonusWindow(),
			BonusFactor: cfg.Ledger.BonusFactor,
		},
		Workers: cfg.Ledger.RecomputeWorkers,
		Logger:  log,
		Metrics: metrics.New(reg),
		Mirror:  mirror,
	})
	return service, cleanup, nil
}

// sampleChallenges seeds the in-memory store for local runs.
func sampleChallenges() []domain.Challenge {
	return []domain.Challenge{
		{
			ID:          "velas",
			Title:       "Las velas",
			Answer:      "17",
			Points:      40,
			MaxAttempts: 3,
			Active:      true,
			Alternatives: []domain.AlternativeAnswer{
				{ID: "velas-alt-1", Text: "diecisiete", Active: true},
			},
		},
		{
			ID:          "puente",
			Title:       "El puente",
			Answer:      "el granjero cruza primero con la cabra",
			Points:      25,
			MaxAttempts: 5,
			Active:      true,
		},
	}
}

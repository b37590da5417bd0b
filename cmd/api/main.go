// The api binary serves the student-facing enrollment and workgroup HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/encorelab/SCORE/config"
	"github.com/encorelab/SCORE/internal/application/command"
	"github.com/encorelab/SCORE/internal/application/eventhandler"
	"github.com/encorelab/SCORE/internal/application/query"
	"github.com/encorelab/SCORE/internal/domain/enrollment"
	"github.com/encorelab/SCORE/internal/domain/run"
	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/internal/infrastructure/messaging"
	"github.com/encorelab/SCORE/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/encorelab/SCORE/internal/infrastructure/persistence/redis"
	"github.com/encorelab/SCORE/internal/infrastructure/service"
	httpiface "github.com/encorelab/SCORE/internal/interface/http"
	"github.com/encorelab/SCORE/pkg/logger"
	"github.com/encorelab/SCORE/pkg/timeutil"
)

func main() {
	if err := runApp(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func runApp() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── 1. Configuration ────────────────────────────────────────────────

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddCaller: cfg.Logging.AddCaller,
	}).With(logger.String("app", cfg.App.Name))

	if err := timeutil.Configure(cfg.App.SchoolTimezone); err != nil {
		return fmt.Errorf("school timezone: %w", err)
	}

	// ─── 2. PostgreSQL ───────────────────────────────────────────────────

	conn, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("database ready")

	runRepo := postgres.NewRunRepository(conn)
	userRepo := postgres.NewUserRepository(conn)
	workgroupRepo := postgres.NewWorkgroupRepository(conn)
	enrollmentRepo := postgres.NewEnrollmentRepository(conn)
	attendanceRepo := postgres.NewAttendanceRepository(conn)
	statsRepo := postgres.NewRunStatsRepository(conn)

	// ─── 3. Redis cache (optional) ───────────────────────────────────────

	var runCache run.Cache
	var redisCache *redisinfra.Cache
	if cfg.Redis.Enabled {
		redisCache, err = redisinfra.NewCache(ctx, redisinfra.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err != nil {
			// The cache is an accelerator, not a dependency.
			log.Warn("redis unavailable, run cache disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			runCache = redisinfra.NewRunCache(redisCache)
			log.Info("redis cache ready")
		}
	}

	// ─── 4. Event bus & subscribers ──────────────────────────────────────

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		EnableMetrics:  true,
	})
	defer bus.Close()

	statsHandler := eventhandler.NewRefreshRunStatsHandler(enrollmentRepo, workgroupRepo, statsRepo, log)
	if err := bus.Subscribe(shared.EventStudentEnrolled, statsHandler.Handle); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventRunLaunched, statsHandler.Handle); err != nil {
		return err
	}

	// Enrollment writes bump the run's counters, so cached run documents are
	// dropped as soon as the enrollment commits.
	if runCache != nil {
		invalidateRun := func(e shared.Event) error {
			enrolled, ok := e.(shared.StudentEnrolledEvent)
			if !ok {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := runCache.Invalidate(ctx, enrolled.RunID, run.Runcode(enrolled.Runcode)); err != nil {
				log.Warn("run cache invalidation failed", logger.RunID(enrolled.RunID), logger.Err(err))
			}
			return nil
		}
		if err := bus.Subscribe(shared.EventStudentEnrolled, invalidateRun); err != nil {
			return err
		}
	}

	// ─── 5. Application layer ────────────────────────────────────────────

	newID := func() string { return uuid.New().String() }
	ledger := enrollment.NewLedger(runRepo, enrollmentRepo, newID)

	launchURLs, err := service.NewLaunchURLService(cfg.App.LaunchBaseURL)
	if err != nil {
		return err
	}

	enrollHandler := command.NewEnrollStudentHandler(
		userRepo, ledger, bus, cfg.Enrollment.MaxAttempts, log)
	launchHandler := command.NewLaunchRunHandler(
		runRepo, userRepo, workgroupRepo, attendanceRepo, ledger,
		launchURLs, bus, cfg.Enrollment.MaxAttempts, newID, log)

	runInfoHandler := query.NewGetRunInfoHandler(runRepo, userRepo, runCache, log)
	studentRunsHandler := query.NewGetStudentRunsHandler(runRepo, userRepo, workgroupRepo, enrollmentRepo, log)
	canJoinHandler := query.NewCanJoinWorkgroupHandler(runRepo, userRepo, workgroupRepo)
	attendanceHandler := query.NewGetRunAttendanceHandler(runRepo, attendanceRepo)

	// ─── 6. HTTP server ──────────────────────────────────────────────────

	readyChecks := map[string]httpiface.ReadyCheck{
		"postgres": conn.Ping,
	}
	if redisCache != nil {
		readyChecks["redis"] = redisCache.Ping
	}

	handler := httpiface.NewHandler(httpiface.HandlerDeps{
		Enroll:      enrollHandler,
		Launch:      launchHandler,
		RunInfo:     runInfoHandler,
		StudentRuns: studentRunsHandler,
		CanJoin:     canJoinHandler,
		RunAttend:   attendanceHandler,
		StatsRepo:   statsRepo,
		Exporter:    service.NewAttendanceExporter(userRepo),
		ReadyChecks: readyChecks,
		Logger:      log,
	})

	server := httpiface.NewServer(httpiface.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReleaseMode:  cfg.IsProduction(),
	}, handler, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// ─── 7. Shutdown ─────────────────────────────────────────────────────

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", logger.Err(err))
		return err
	}

	log.Info("api stopped")
	return nil
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	return postgres.NewConnection(ctx, postgres.Config{
		Host:              cfg.Database.Host,
		Port:              cfg.Database.Port,
		Database:          cfg.Database.Name,
		User:              cfg.Database.User,
		Password:          cfg.Database.Password,
		SSLMode:           cfg.Database.SSLMode,
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	})
}

// The worker binary runs background jobs: the periodic reconciliation sweep
// that keeps the run statistics projection honest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/encorelab/SCORE/config"
	"github.com/encorelab/SCORE/internal/application/eventhandler"
	"github.com/encorelab/SCORE/internal/infrastructure/persistence/postgres"
	"github.com/encorelab/SCORE/internal/infrastructure/scheduler"
	"github.com/encorelab/SCORE/internal/infrastructure/scheduler/jobs"
	"github.com/encorelab/SCORE/pkg/logger"
	"github.com/encorelab/SCORE/pkg/timeutil"
)

func main() {
	if err := runWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func runWorker() error {
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
	}).With(logger.String("app", cfg.App.Name+"-worker"))

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
	workgroupRepo := postgres.NewWorkgroupRepository(conn)
	enrollmentRepo := postgres.NewEnrollmentRepository(conn)
	statsRepo := postgres.NewRunStatsRepository(conn)

	// ─── 3. Jobs & scheduler ─────────────────────────────────────────────

	refresher := eventhandler.NewRefreshRunStatsHandler(enrollmentRepo, workgroupRepo, statsRepo, log)
	statsJob := jobs.NewRefreshRunStatsJob(runRepo, refresher, log)

	sched := scheduler.New(scheduler.Config{
		TickInterval:      time.Second,
		ResultHistorySize: 100,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		Logger:            log,
	})

	if err := sched.Register(statsJob, scheduler.Every(cfg.Scheduler.StatsRefreshInterval)); err != nil {
		return err
	}

	// Prime the projection on startup instead of waiting a full interval.
	if err := sched.RunNow(ctx, statsJob.Name()); err != nil {
		log.Warn("initial stats sweep failed", logger.Err(err))
	}

	// ─── 4. Run until signalled ──────────────────────────────────────────

	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	sched.Stop()
	<-done

	log.Info("worker stopped")
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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"devcollab/config"
	"devcollab/domain"
	"devcollab/oracle"
	"devcollab/reconciler"
	"devcollab/storage"
)

func main() {
	cfg, err := config.LoadReconciler()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	logger.SetLevel(cfg.LogLevel())
	log.SetLevel(cfg.LogLevel())

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}()

	svc, err := storage.NewServiceClient(cfg.ConnectionString)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	tasks := storage.NewTasks(svc, cfg.TasksTable)
	var dir domain.Directory = storage.NewDirectory(svc, cfg.ProjectsTable, cfg.UsersTable)

	var opts []reconciler.Option
	redisOpts, err := cfg.Options()
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		opts = append(opts, reconciler.WithLease(reconciler.NewRedisLease(rc, cfg.LeaseKey, cfg.LeaseTTL)))
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, running without a lease; run a single replica")
	}

	gh, err := oracle.NewGitHub(oracle.WithBaseURL(cfg.GitHubAPI))
	if err != nil {
		logger.Fatalf("github: %v", err)
	}

	r := reconciler.New(tasks, domain.NewTaskService(tasks, dir), gh, logger, reconciler.Config{
		Interval:    cfg.Interval,
		CallTimeout: cfg.CallTimeout,
		Workers:     cfg.Workers,
	}, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	r.Run(ctx)
}

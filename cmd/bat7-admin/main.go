package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/repository"
	"github.com/psicometria/bat7-api/internal/service"
	"github.com/psicometria/bat7-api/pkg/config"
	"github.com/psicometria/bat7-api/pkg/database"
	"github.com/psicometria/bat7-api/pkg/logger"
)

const usage = `bat7-admin <command> [flags]

Commands:
  subjects   list subjects (--search, --filter field=value, --page, --limit)
  sessions   list test sessions (--subject, --estado, --limit)
  sweep      delete cancelled sessions (--older-than 720h)
  features   detect optional relations
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		color.Red("database unavailable: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	features := service.NewFeatureService(repository.NewFeatureRepository(db), logr)
	features.Detect(ctx)
	timeout := repository.WithQueryTimeout(cfg.Database.QueryTimeout)
	cli := &commands{
		out:       os.Stdout,
		subjects:  repository.NewEntityRepository[models.Subject](db, repository.SubjectEntity, timeout),
		sessions:  repository.NewEntityRepository[models.TestSession](db, repository.TestSessionEntity, timeout),
		features:  features,
		retention: cfg.Maintenance.CancelledRetention,
	}
	cli.maintenance = service.NewMaintenanceService(repository.NewSessionRepository(db), nil, features, logr, service.MaintenanceConfig{
		Interval:           cfg.Maintenance.SweepInterval,
		CancelledRetention: cfg.Maintenance.CancelledRetention,
		StaleAfter:         cfg.Sessions.SnapshotTTL,
	})

	if err := cli.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logr.Debug("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		color.Red("%s: %v", os.Args[1], err)
		os.Exit(1)
	}
}

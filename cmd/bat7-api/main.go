package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/psicometria/bat7-api/api/swagger"
	"github.com/psicometria/bat7-api/internal/handler"
	"github.com/psicometria/bat7-api/internal/middleware"
	"github.com/psicometria/bat7-api/internal/models"
	"github.com/psicometria/bat7-api/internal/repository"
	"github.com/psicometria/bat7-api/internal/service"
	"github.com/psicometria/bat7-api/pkg/cache"
	"github.com/psicometria/bat7-api/pkg/config"
	"github.com/psicometria/bat7-api/pkg/database"
	"github.com/psicometria/bat7-api/pkg/events"
	"github.com/psicometria/bat7-api/pkg/jobs"
	"github.com/psicometria/bat7-api/pkg/kvstore"
	"github.com/psicometria/bat7-api/pkg/listing"
	"github.com/psicometria/bat7-api/pkg/logger"
	corsmiddleware "github.com/psicometria/bat7-api/pkg/middleware/cors"
	reqidmiddleware "github.com/psicometria/bat7-api/pkg/middleware/requestid"
	"github.com/psicometria/bat7-api/pkg/storage"
)

// @title BAT-7 Administration API
// @version 1.0.0
// @description Subjects, evaluation sessions, results and score reports for the BAT-7 battery
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	features := service.NewFeatureService(repository.NewFeatureRepository(db), logr)
	set := features.Detect(ctx)
	logr.Info("optional relations detected", zap.Any("relations", set.Relations))

	var listingCache *service.CacheService
	if rdb != nil {
		listingCache = service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Listing.CacheTTL, logr)
	}

	repoOpts := []repository.EntityOption{
		repository.WithQueryTimeout(cfg.Database.QueryTimeout),
		repository.WithQueryObserver(metrics.ObserveDBQuery),
	}
	listingCfg := func(name, sort string, desc bool) service.ListingConfig {
		return service.ListingConfig{
			Name:            name,
			CacheTTL:        cfg.Listing.CacheTTL,
			SnapshotLimit:   cfg.Listing.SnapshotLimit,
			DefaultPageSize: cfg.Listing.DefaultPageSize,
			Window:          cfg.Listing.PageWindow,
			DefaultSort:     sort,
			DefaultDesc:     desc,
		}
	}

	subjectRepo := repository.NewEntityRepository[models.Subject](db, repository.SubjectEntity, repoOpts...)
	subjectListing := service.NewListingService[models.Subject](subjectRepo,
		listing.NewEngine(listing.WithSearchFields("nombre", "apellido", "documento", "email"), listing.WithRangeFields("edad")),
		listingCache, listingCfg("subjects", "apellido", false), logr)
	subjects := service.NewEntityService[models.Subject](subjectRepo, validate, logr, service.EntityHooks{
		Prepare:  service.PrepareSubject,
		OnChange: subjectListing.Invalidate,
	})
	subjectBulk := service.NewBulkService(subjects, subjectListing, metrics, validate, logr, service.BulkConfig{
		Concurrency: cfg.Bulk.Concurrency,
		MaxItems:    cfg.Bulk.MaxItems,
	})

	institutionRepo := repository.NewEntityRepository[models.Institution](db, repository.InstitutionEntity, repoOpts...)
	institutionListing := service.NewListingService[models.Institution](institutionRepo,
		listing.NewEngine(listing.WithSearchFields("nombre", "direccion")), listingCache, listingCfg("institutions", "nombre", false), logr)
	institutions := service.NewEntityService[models.Institution](institutionRepo, validate, logr, service.EntityHooks{
		Prepare: service.PrepareInstitution,
		OnChange: func(ctx context.Context) {
			institutionListing.Invalidate(ctx)
			subjectListing.Invalidate(ctx)
		},
	})

	psychologistRepo := repository.NewEntityRepository[models.Psychologist](db, repository.PsychologistEntity, repoOpts...)
	psychologistListing := service.NewListingService[models.Psychologist](psychologistRepo,
		listing.NewEngine(listing.WithSearchFields("nombre", "apellido", "documento", "email")), listingCache, listingCfg("psychologists", "apellido", false), logr)
	psychologists := service.NewEntityService[models.Psychologist](psychologistRepo, validate, logr, service.EntityHooks{
		Prepare: service.PreparePsychologist,
		OnChange: func(ctx context.Context) {
			psychologistListing.Invalidate(ctx)
			subjectListing.Invalidate(ctx)
		},
	})

	userRepo := repository.NewEntityRepository[models.User](db, repository.UserEntity, repoOpts...)
	userListing := service.NewListingService[models.User](userRepo,
		listing.NewEngine(listing.WithSearchFields("email", "nombre", "apellido")), listingCache, listingCfg("users", "email", false), logr)
	users := service.NewEntityService[models.User](userRepo, validate, logr, service.EntityHooks{
		Prepare:  service.UserPreparer(bcrypt.DefaultCost),
		OnChange: userListing.Invalidate,
	})

	sessionListRepo := repository.NewEntityRepository[models.TestSession](db, repository.TestSessionEntity, repoOpts...)
	sessionListing := service.NewListingService[models.TestSession](sessionListRepo,
		listing.NewEngine(listing.WithSearchFields("subject")), nil, listingCfg("test_sessions", "fecha_inicio", true), logr)

	backend, closeBackend, err := kvstore.Open(ctx, cfg.KV, rdb, logr)
	if err != nil {
		return fmt.Errorf("open keyed storage: %w", err)
	}
	defer closeBackend() //nolint:errcheck

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.Enabled && len(cfg.Events.Brokers) > 0 {
		async := events.NewAsync(events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic), jobs.QueueConfig{
			Workers:    cfg.Events.Workers,
			MaxRetries: cfg.Events.MaxRetries,
			Logger:     logr,
		})
		async.Start(ctx)
		publisher = async
		logr.Info("session events enabled", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	}
	defer publisher.Close() //nolint:errcheck

	var sessions *service.SessionManager
	snapshots := kvstore.NewTTL(backend, service.EmptySnapshot(), cfg.Sessions.SnapshotTTL,
		kvstore.WithTTLLogger[service.Snapshot](logr),
		kvstore.WithTTLOnChange(func(key string, value service.Snapshot) {
			if sessions != nil {
				sessions.Invalidate(key, value)
			}
		}))
	resultRepo := repository.NewResultRepository(db)
	sessions = service.NewSessionManager(repository.NewSessionRepository(db), resultRepo, subjects, snapshots, features, logr,
		service.WithSessionPublisher(publisher),
		service.WithSessionMetrics(metrics))
	snapshots.StartPurge(ctx, cfg.KV.PurgeInterval)
	go func() {
		if err := snapshots.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Warn("keyed storage watch stopped", zap.Error(err))
		}
	}()

	results := service.NewResultService(resultRepo, subjects, features, logr)

	store, err := storage.Open(ctx, cfg.Reports)
	if err != nil {
		return fmt.Errorf("open report storage: %w", err)
	}
	reports := service.NewReportService(results, store, storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
		service.ReportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)

	var janitor interface {
		CleanupOlderThan(ttl time.Duration) ([]string, error)
	}
	if local, ok := store.(*storage.LocalStorage); ok {
		janitor = local
	}
	maintenance := service.NewMaintenanceService(repository.NewSessionRepository(db), janitor, features, logr, service.MaintenanceConfig{
		Interval:           cfg.Maintenance.SweepInterval,
		CancelledRetention: cfg.Maintenance.CancelledRetention,
		StaleAfter:         cfg.Sessions.SnapshotTTL,
		ReportRetention:    cfg.Reports.SignedURLTTL,
	})
	maintenance.Start(ctx)

	userStore := repository.NewUserRepository(db)
	auth := service.NewAuthService(userStore, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             cfg.JWT.Issuer,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}))
	r.Use(middleware.Metrics(metrics))

	handler.Routes{
		Prefix:        cfg.APIPrefix,
		Auth:          handler.NewAuthHandler(auth),
		Subjects:      handler.NewSubjectHandler(subjects, subjectListing, subjectBulk, results),
		Institutions:  handler.NewEntityHandler[models.Institution](institutions, institutionListing),
		Psychologists: handler.NewEntityHandler[models.Psychologist](psychologists, psychologistListing),
		Users:         handler.NewEntityHandler[models.User](users, userListing),
		Sessions:      handler.NewSessionHandler(sessions, sessionListing),
		Results:       handler.NewResultHandler(results),
		Reports:       handler.NewReportHandler(reports, logr),
		Features:      handler.NewFeatureHandler(features),
		Metrics:       handler.NewMetricsHandler(metrics, repository.NewFeatureRepository(db)),
		Tokens:        auth,
		Audit:         userStore,
		Gate:          features,
		Logger:        logr,
	}.Register(r)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/leadership-program/nomination-api/api/swagger"
	"github.com/leadership-program/nomination-api/internal/handler"
	"github.com/leadership-program/nomination-api/internal/middleware"
	"github.com/leadership-program/nomination-api/internal/repository"
	"github.com/leadership-program/nomination-api/internal/service"
	"github.com/leadership-program/nomination-api/pkg/cache"
	"github.com/leadership-program/nomination-api/pkg/config"
	"github.com/leadership-program/nomination-api/pkg/database"
	"github.com/leadership-program/nomination-api/pkg/export"
	"github.com/leadership-program/nomination-api/pkg/jobs"
	"github.com/leadership-program/nomination-api/pkg/lock"
	"github.com/leadership-program/nomination-api/pkg/logger"
	"github.com/leadership-program/nomination-api/pkg/mail"
	corsmiddleware "github.com/leadership-program/nomination-api/pkg/middleware/cors"
	reqidmiddleware "github.com/leadership-program/nomination-api/pkg/middleware/requestid"
	"github.com/leadership-program/nomination-api/pkg/storage"
)

// @title Leadership Program Nomination API
// @version 1.0.0
// @description Nomination, registration, attendance and diploma lifecycle for the leadership training program
// @BasePath /api/v1
// @schemes http https

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(ctx, db, logr); err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, falling back to in-process locks and no stats cache", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	metrics := service.NewMetricsService()

	queue := jobs.NewQueue("notifications", service.MailJobHandler(mail.New(cfg.Mail, logr)), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		JobTimeout: 30 * time.Second,
		OnDone:     func(job jobs.Job, err error) { metrics.RecordNotification(job.Type, err) },
		Logger:     logr,
	})
	queue.Start(ctx)

	app, err := build(cfg, logr, db, redisClient, queue, metrics)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	registerRoutes(r, cfg, app)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	queue.Stop()
}

// application holds the wired handlers plus what the ops endpoints need.
type application struct {
	verifier     middleware.TokenVerifier
	auth         *handler.AuthHandler
	nominations  *handler.NominationHandler
	registration *handler.RegistrationHandler
	training     *handler.TrainingHandler
	participants *handler.ParticipantHandler
	members      *handler.MemberHandler
	diplomas     *handler.DiplomaHandler
	ops          *handler.MetricsHandler
}

func build(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, queue *jobs.Queue, metrics *service.MetricsService) (*application, error) {
	validate := validator.New()

	nominationRepo := repository.NewNominationRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	var locker lock.Locker = lock.NewLocalLocker(cfg.Locks.TTL)
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		locker = lock.NewRedisLocker(redisClient, "nomination-lock:", cfg.Locks.TTL)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, cfg.Stats.CacheEnabled)

	archive, err := storage.NewLocalStorage(cfg.Diplomas.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("diploma storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Diplomas.SignedURLSecret, cfg.Diplomas.SignedURLTTL)

	notifier, err := service.NewNotificationService(queue, mail.New(cfg.Mail, logr), service.NotificationConfig{
		AdminEmail:           cfg.Mail.AdminEmail,
		RegistrationURL:      cfg.Program.RegistrationURL,
		ParticipantPortalURL: cfg.Program.ParticipantPortalURL,
		MemberPortalURL:      cfg.Program.MemberPortalURL,
	}, metrics, logr)
	if err != nil {
		return nil, fmt.Errorf("notification templates: %w", err)
	}

	credentials := service.NewCredentialService(service.CredentialConfig{
		TokenSecret:    cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		PasswordLength: cfg.Program.PasswordLength,
	})

	nominationSvc := service.NewNominationService(nominationRepo, notifier, locker, cacheSvc, metrics, auditRepo, validate, service.NominationConfig{
		RegistrationURL:         cfg.Program.RegistrationURL,
		NotifyNominatorOnReject: cfg.Program.NotifyNominatorOnReject,
		StatsTTL:                cfg.Stats.CacheTTL,
	}, logr)
	participantSvc := service.NewParticipantService(nominationRepo, participantRepo, credentials, notifier, locker, cacheSvc, metrics, auditRepo, validate, service.ParticipantConfig{
		AttendanceThreshold:     cfg.Program.AttendanceThreshold,
		GuardRejectedAttendance: cfg.Program.GuardRejectedAttendance,
		SessionTTL:              cfg.JWT.ParticipantSession,
	}, logr)
	memberSvc := service.NewMemberService(memberRepo, credentials, notifier, signer, auditRepo, validate, service.MemberConfig{
		SessionTTL:   cfg.JWT.MemberSession,
		DownloadPath: cfg.APIPrefix + "/v1/diplomas/download",
	}, logr)
	diplomaSvc := service.NewDiplomaService(nominationRepo, participantRepo, memberSvc, export.NewDiplomaRenderer(), archive, signer,
		notifier, locker, cacheSvc, metrics, auditRepo, service.DiplomaConfig{
			AttendanceThreshold:     cfg.Program.AttendanceThreshold,
			Issuer:                  cfg.Program.CertificateIssuer,
			GuardRejectedAttendance: cfg.Program.GuardRejectedAttendance,
		}, logr)
	exportSvc := service.NewExportService(nominationRepo, cfg.Program.AttendanceThreshold, logr)
	authSvc := service.NewAuthService(userRepo, credentials, auditRepo, validate, cfg.JWT.Expiration, logr)

	checks := map[string]handler.Pinger{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	return &application{
		verifier:     credentials,
		auth:         handler.NewAuthHandler(authSvc),
		nominations:  handler.NewNominationHandler(nominationSvc),
		registration: handler.NewRegistrationHandler(nominationSvc),
		training:     handler.NewTrainingHandler(participantSvc, exportSvc),
		participants: handler.NewParticipantHandler(participantSvc),
		members:      handler.NewMemberHandler(memberSvc),
		diplomas:     handler.NewDiplomaHandler(diplomaSvc),
		ops:          handler.NewMetricsHandler(metrics, checks),
	}, nil
}

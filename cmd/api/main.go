package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"tube-archive/internal/config"
	"tube-archive/internal/db"
	"tube-archive/internal/email"
	apihttp "tube-archive/internal/http"
	"tube-archive/internal/jobs"
	"tube-archive/internal/repository"
	"tube-archive/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := db.Ping(pingCtx, pool); err != nil {
		cancelPing()
		logger.Fatal("db ping", zap.Error(err))
	}
	cancelPing()

	if err := db.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	roleRepo := repository.NewPgRoleRepository(pool)
	verTokenRepo := repository.NewPgVerificationTokenRepository(pool)
	resetTokenRepo := repository.NewPgResetTokenRepository(pool)
	quotaRepo := repository.NewPgQuotaRepository(pool)
	identityRepo := repository.NewPgIdentityVerificationRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		verifyLimiter service.RateLimiter
		resetLimiter  service.RateLimiter
		sessionStore  service.SessionStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			verifyLimiter = service.NewRedisRateLimiter(redisClient, time.Hour, 3)
			resetLimiter = service.NewRedisRateLimiter(redisClient, time.Hour, 3)
			sessionStore = service.NewRedisSessionStore(redisClient)
		}
		cancel()
	}

	policy := service.NewPasswordPolicy(cfg.DefaultPassword)
	verifySvc := service.NewVerificationService(logger, userRepo, roleRepo, verTokenRepo, verifyLimiter, emailSender, policy, cfg.AppBaseURL)
	authSvc := service.NewAuthService(logger, userRepo, roleRepo, sessionStore, policy)
	resetSvc := service.NewResetService(logger, userRepo, resetTokenRepo, resetLimiter, emailSender, policy, cfg.AppBaseURL)
	quotaSvc := service.NewQuotaService(logger, quotaRepo, cfg.QuotaMonthlyLimit)
	identitySvc := service.NewIdentityService(logger, identityRepo, quotaSvc)
	adminSvc := service.NewAdminService(logger, userRepo, roleRepo)

	authHandler := apihttp.NewAuthHandler(logger, verifySvc, authSvc, resetSvc)
	quotaHandler := apihttp.NewQuotaHandler(logger, quotaSvc, identitySvc)
	adminHandler := apihttp.NewAdminHandler(logger, adminSvc, identitySvc)
	router := apihttp.NewRouter(logger, authSvc, authHandler, quotaHandler, adminHandler)

	cleanupJob := jobs.NewTokenCleanupJob(logger, service.NewTokenService(verTokenRepo), service.NewTokenService(resetTokenRepo))
	sweepJob := jobs.NewQuotaSweepJob(logger, quotaSvc)
	go cleanupJob.Start(ctx)
	go sweepJob.Start(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

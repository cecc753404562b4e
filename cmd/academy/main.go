// Package main запускает HTTP-сервер магазина учебных материалов.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/academy-store/internal/cache"
	"github.com/mmeshcher/academy-store/internal/config"
	"github.com/mmeshcher/academy-store/internal/handler"
	"github.com/mmeshcher/academy-store/internal/logger"
	"github.com/mmeshcher/academy-store/internal/metrics"
	"github.com/mmeshcher/academy-store/internal/middleware"
	"github.com/mmeshcher/academy-store/internal/notify"
	"github.com/mmeshcher/academy-store/internal/payment"
	"github.com/mmeshcher/academy-store/internal/repository"
	"github.com/mmeshcher/academy-store/internal/service"
	"github.com/mmeshcher/academy-store/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log, err := logger.New(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, logger.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("database initialization error: %w", err)
	}

	m := metrics.Registry(cfg.MetricsNamespace)

	opts := service.Options{
		Gateway:        payment.NewClient(cfg.PaymentGatewayURL, cfg.PaymentSecretKey, m),
		CacheTTL:       cfg.Redis.TTL,
		Metrics:        m,
		Logger:         log,
		ConsentVersion: cfg.Solapi.ConsentVersion,
	}

	if cfg.Redis.Addr != "" {
		rc := cache.New(cache.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, log)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unavailable, recommendations are served uncached until it recovers", zap.Error(err))
		}
		opts.Cache = rc
	}

	if cfg.S3.Bucket != "" {
		s3, err := storage.New(ctx, storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			URLTTL:          cfg.S3.URLTTL,
		})
		if err != nil {
			return fmt.Errorf("storage initialization error: %w", err)
		}
		opts.Storage = s3
	} else {
		log.Warn("S3_BUCKET is not set, downloads are disabled")
	}

	dispatcher := notify.NewDispatcher(log, m, cfg.NotifyTimeout)
	go dispatcher.Run()
	defer dispatcher.Close()

	var tg *notify.Telegram
	if cfg.TelegramBotToken != "" {
		tg, err = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAdminChatID)
		if err != nil {
			log.Warn("telegram alerts disabled", zap.Error(err))
			tg = nil
		}
	}

	solapi := notify.NewSolapi(notify.SolapiConfig{
		APIKey:      cfg.Solapi.APIKey,
		APISecret:   cfg.Solapi.APISecret,
		SenderPhone: cfg.Solapi.SenderPhone,
		PFID:        cfg.Solapi.KakaoPFID,
		BrandName:   cfg.Solapi.BrandName,
		OptOutPhone: cfg.Solapi.OptOutPhone,
	}, "")
	if !solapi.Configured() {
		log.Warn("solapi is not configured, customer notifications are skipped")
	}

	opts.Notifier = notify.NewNotifier(dispatcher, solapi, tg, notify.Templates{
		Applicant: cfg.Solapi.ApplicantTemplate,
		Admin:     cfg.Solapi.AdminTemplate,
		Schedule:  cfg.Solapi.ScheduleTemplate,
	}, cfg.Solapi.AdminPhone, log)

	svc := service.NewService(repo, opts)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		log.Warn("AUTH_SECRET is not set, using a random signing key; sessions end on restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, log, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting academy store server", zap.String("addr", cfg.RunAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"pianolearn/internal/admintoken"
	"pianolearn/internal/app"
	"pianolearn/internal/config"
	"pianolearn/internal/ratelimit"
	"pianolearn/internal/server"
	"pianolearn/internal/util"
	"pianolearn/pkg/mail"
	"pianolearn/pkg/notify"
	"pianolearn/pkg/payment"
	"pianolearn/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenTTL, err := config.ParseAdminTokenTTL(cfg.AdminTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse admin token ttl: %v", err)
	}
	tokens, err := admintoken.New(admintoken.Options{
		Secret: cfg.AdminTokenSecret,
		TTL:    tokenTTL,
	})
	if err != nil {
		log.Fatalf("failed to init admin tokens: %v", err)
	}

	blobs, static, err := buildStorage(cfg)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}

	payments := payment.New(payment.Config{
		RazorpayKeyID:     cfg.RazorpayKeyID,
		RazorpayKeySecret: cfg.RazorpayKeySecret,
		Currency:          cfg.Currency,
		UPIID:             cfg.UPIID,
		UPIMerchantName:   cfg.UPIMerchantName,
	})

	sender := buildSender(cfg)
	emails, err := buildEmailQueue(cfg, sender)
	if err != nil {
		log.Fatalf("failed to init email queue: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:       cfg.DatabaseURL,
		Blobs:             blobs,
		Payments:          payments,
		Emails:            emails,
		BaseURL:           cfg.BaseURL,
		AdminEmails:       cfg.AdminEmails,
		AdminPasswordHash: cfg.AdminPasswordHash,
		MaxUploadBytes:    cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	limits, err := buildLimiters(cfg)
	if err != nil {
		log.Fatalf("failed to init rate limiters: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:        appCore,
		Tokens:     tokens,
		Static:     static,
		CORSOrigin: cfg.CORSOrigin,
		Limits:     limits,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("pianolearn server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildStorage(cfg config.FileConfig) (storage.BlobStore, *storage.DiskStore, error) {
	if cfg.StorageBackend == "minio" {
		blobs, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, nil, err
		}
		// previews are not served from local disk under minio
		return blobs, nil, nil
	}
	disk, err := storage.NewDiskStore(cfg.UploadsDir)
	if err != nil {
		return nil, nil, err
	}
	return disk, disk, nil
}

func buildSender(cfg config.FileConfig) mail.Sender {
	if cfg.SMTPHost == "" {
		slog.Warn("smtp not configured, outbound email is logged and dropped")
		return mail.NewLogSender()
	}
	return mail.NewSMTPSender(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

func buildEmailQueue(cfg config.FileConfig, sender mail.Sender) (notify.Queue, error) {
	if cfg.RedisAddr == "" {
		slog.Warn("redis not configured, sending email without a durable queue")
		return notify.NewDirectQueue(sender), nil
	}
	queue, err := notify.NewRedisEmailQueue(notify.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.EmailStream,
		Group:      cfg.EmailGroup,
		MaxRetries: cfg.EmailMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	queue.Start(context.Background(), cfg.EmailWorkers, sender)
	return queue, nil
}

func buildLimiters(cfg config.FileConfig) (server.Limiters, error) {
	limits := server.Limiters{}
	if cfg.RedisAddr == "" {
		slog.Warn("redis not configured, rate limiting disabled")
		return limits, nil
	}
	build := func(name string, perMinute int) (*ratelimit.FixedWindowLimiter, error) {
		if perMinute == 0 {
			return nil, nil
		}
		return ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "pianolearn:ratelimit:"+name, perMinute, time.Minute)
	}
	var err error
	if limits.Contact, err = build("contact", cfg.ContactRateLimitPerMinute); err != nil {
		return limits, err
	}
	if limits.Newsletter, err = build("newsletter", cfg.NewsletterRateLimitPerMinute); err != nil {
		return limits, err
	}
	if limits.Login, err = build("login", cfg.LoginRateLimitPerMinute); err != nil {
		return limits, err
	}
	if limits.Purchase, err = build("purchase", cfg.PurchaseRateLimitPerMinute); err != nil {
		return limits, err
	}
	return limits, nil
}

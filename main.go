// Package main implements the Witness Runtime server.
// Witness Runtime guards the emergency flows of the Witness app: it validates
// and stores emergency contacts, rate limits sensitive operations and
// dispatches alerts by SMS and email, keeping personal data out of its logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arturoeanton/witness-runtime/contacts"
	"github.com/arturoeanton/witness-runtime/endpoints"
	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/arturoeanton/witness-runtime/notify"
	"github.com/arturoeanton/witness-runtime/ratelimit"
	"github.com/arturoeanton/witness-runtime/security/encryption"
	"github.com/arturoeanton/witness-runtime/security/sanitizer"
	"github.com/go-redis/redis"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// verbose enables debug output when set via -v flag
	verbose    = flag.Bool("v", false, "Enable verbose logging")
	configPath = flag.String("c", "config.toml", "Path to the configuration file")
	genKey     = flag.Bool("genkey", false, "Print a new base64 encryption key and exit")
)

func main() {
	flag.Parse()

	if *genKey {
		key, err := encryption.GenerateKeyString()
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to generate key:", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	loaded, err := loadConfig(*configPath)
	if err != nil {
		logger.Initialize(*verbose, true)
		logger.Fatal("Failed to load configuration", err)
	}

	configRepo := engine.NewConfigRepository(loaded)
	defer configRepo.Close()
	config := configRepo.GetConfig()
	redisClient := configRepo.GetRedisClient()

	log, err := newLogger(config, redisClient)
	if err != nil {
		logger.Initialize(*verbose, true)
		logger.Fatal("Invalid logging configuration", err)
	}
	logger.SetDefault(log)
	log.Info("Starting Witness Runtime", map[string]any{"config": *configPath})

	db, err := configRepo.GetDB()
	if err != nil {
		logger.Fatal("Failed to open database", err)
	}
	if err := engine.PingDB(db, 5*time.Second); err != nil {
		logger.Fatal("Failed to reach database", err)
	}

	var cipher contacts.FieldCipher
	if config.SecurityConfig.EncryptionKey != "" {
		es, err := encryption.NewEncryptionService(config.SecurityConfig.EncryptionKey)
		if err != nil {
			logger.Fatal("Invalid encryption key", err)
		}
		cipher = es
	} else {
		log.Warn("No encryption key configured, contact details are stored in plaintext", nil)
	}

	store := contacts.NewSQLStore(db, cipher)
	if config.DatabaseConfig.AutoMigrate {
		if err := store.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", err)
		}
	}

	rateLimiter := ratelimit.NewRateLimiter(&config.RateLimitConfig, redisClient)
	defer rateLimiter.Close()
	if config.RateLimitConfig.Enabled {
		log.Info("Rate limiting enabled", map[string]any{
			"backend":      config.RateLimitConfig.Backend,
			"max_requests": config.RateLimitConfig.MaxRequests,
			"window_ms":    config.RateLimitConfig.WindowMs,
		})
	}

	notifier, err := newNotifier(config, log)
	if err != nil {
		logger.Fatal("Invalid notification templates", err)
	}
	defer notifier.Close()

	ipExtractor, err := ratelimit.NewIPExtractor(config.ServerConfig.TrustedProxies)
	if err != nil {
		logger.Fatal("Invalid trusted proxies", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = ipExtractor
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if config.ServerConfig.BodyLimit != "" {
		e.Use(middleware.BodyLimit(config.ServerConfig.BodyLimit))
	}
	if config.RateLimitConfig.Enabled {
		e.Use(ratelimit.Middleware(&config.RateLimitConfig, rateLimiter))
	}

	endpoints.Register(e, endpoints.Dependencies{
		Config:   config,
		Contacts: contacts.NewService(store, rateLimiter, log, contacts.Options{}),
		Notifier: notifier,
		Limiter:  rateLimiter,
		Log:      log,
		DB:       db,
		Redis:    redisClient,
	})

	e.Server.ReadTimeout = time.Duration(config.ServerConfig.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(config.ServerConfig.WriteTimeout) * time.Second

	go func() {
		log.Info("Listening", map[string]any{"address": config.ServerConfig.Address})
		var err error
		if config.ServerConfig.TLSCert != "" {
			err = e.StartTLS(config.ServerConfig.Address, config.ServerConfig.TLSCert, config.ServerConfig.TLSKey)
		} else {
			err = e.Start(config.ServerConfig.Address)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", nil, err)
	}
}

// loadConfig reads path when it exists and falls back to the defaults
func loadConfig(path string) (engine.ConfigWorkspace, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return engine.DefaultConfig(), nil
	}
	return engine.LoadConfig(path)
}

// newLogger builds the secure logger, forwarding error entries to redis
// when configured
func newLogger(config *engine.ConfigWorkspace, redisClient *redis.Client) (*logger.Logger, error) {
	redactor, err := sanitizer.NewRedactor(&config.LoggingConfig.Redaction)
	if err != nil {
		return nil, err
	}

	level := logger.LevelInfo
	if *verbose || config.LoggingConfig.Verbose {
		level = logger.LevelDebug
	}

	opts := logger.Options{
		Prefix:      config.LoggingConfig.Prefix,
		Capacity:    config.LoggingConfig.BufferCapacity,
		Development: config.LoggingConfig.Development,
		MinLevel:    level,
		Redactor:    redactor,
	}
	if config.LoggingConfig.ForwardToRedis {
		if redisClient == nil {
			return nil, errors.New("logging.forward_to_redis requires a redis host")
		}
		opts.Forwarder = logger.NewRedisForwarder(redisClient, config.LoggingConfig.ForwardKey, config.LoggingConfig.ForwardMaxLen)
	}
	return logger.New(opts), nil
}

func newNotifier(config *engine.ConfigWorkspace, log *logger.Logger) (*notify.Notifier, error) {
	opts := notify.Options{Config: config.NotifyConfig, Log: log}

	// a nil *TwilioSender must not become a non-nil interface
	if sms := notify.NewTwilioSender(config.TwilioConfig); sms != nil {
		opts.SMS = sms
	} else {
		log.Warn("Twilio disabled, alerts will not be sent by SMS", nil)
	}
	if mail := notify.NewSMTPSender(config.MailConfig); mail != nil {
		opts.Email = mail
	} else {
		log.Warn("Mail disabled, alerts will not be sent by email", nil)
	}

	return notify.New(opts)
}

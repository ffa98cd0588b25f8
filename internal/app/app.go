package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/letterspace/core/internal/config"
	"github.com/letterspace/core/internal/database"
	"github.com/letterspace/core/internal/middleware"
	"github.com/letterspace/core/internal/pkg/delivery"
	"github.com/letterspace/core/internal/pkg/idempotency"
	"github.com/letterspace/core/internal/pkg/mail"
	pkgredis "github.com/letterspace/core/internal/pkg/redis"
	"github.com/letterspace/core/internal/pkg/token"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// devTokenSecret signs confirmation tokens when no secret is configured.
// Only acceptable for local development.
const devTokenSecret = "letterspace-dev-secret"

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	logger *zap.Logger
}

// New initializes the application: config → DB → Redis → pipeline → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	// The delivery ledger lives in Redis so duplicate suppression survives
	// restarts. Development setups without Redis fall back to process memory.
	var (
		rc    *pkgredis.Client
		cache idempotency.Cache
	)
	if strings.TrimSpace(cfg.RedisURL) == "" && cfg.IsDev() {
		logger.Warn("redis_url is empty, delivery ledger is in-memory only")
		cache = idempotency.NewMemoryCache()
	} else {
		rc, err = pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		cache = idempotency.NewRedisCache(rc.Raw())
	}

	secret := strings.TrimSpace(cfg.Token.Secret)
	if secret == "" {
		if !cfg.IsDev() {
			return nil, errors.New("token.secret is required in production")
		}
		logger.Warn("token.secret is empty, using built-in dev secret")
		secret = devTokenSecret
	}
	codec, err := token.NewCodec(secret, cfg.Token.TTL.Std())
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	sender := mail.New(mail.BuildConfig(cfg))
	if !cfg.Mail.Enable {
		logger.Warn("mail is disabled, outbound email is dropped")
	}

	pipeline := delivery.NewPipeline(sender, cache, delivery.Options{
		BaseURL:     cfg.BaseURL,
		SiteName:    cfg.Mail.SiteName,
		MaxAttempts: cfg.Delivery.MaxAttempts,
		Backoff:     delivery.NewBackoff(cfg.Delivery.BackoffBase.Std(), cfg.Delivery.BackoffCap.Std()),
		SendTimeout: cfg.Delivery.SendTimeout.Std(),
		LeaseTTL:    cfg.Delivery.LeaseTTL.Std(),
		Concurrency: cfg.Delivery.BroadcastConcurrency,
	}, logger)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(buildCORSConfig(cfg)))

	app := &App{cfg: cfg, router: router, db: db, rc: rc, logger: logger}
	app.registerRoutes(codec, pipeline)

	return app, nil
}

func buildCORSConfig(cfg *config.AppConfig) cors.Config {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsConfig
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Close releases the Redis connection.
func (a *App) Close() error {
	if a.rc != nil {
		return a.rc.Close()
	}
	return nil
}

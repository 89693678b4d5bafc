package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/congo-pay/wallet-ledger/internal/config"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/middleware"
	"github.com/congo-pay/wallet-ledger/internal/notification"
	"github.com/congo-pay/wallet-ledger/internal/users"
	"github.com/congo-pay/wallet-ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Gorm   *gorm.DB
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil && d.Gorm == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	store, err := buildStore(context.Background(), d)
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.LogFormat == "text" {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{TTL: d.Cfg.IdempotencyTTL}, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	engine := ledger.NewEngine(store,
		ledger.WithMaxRetries(d.Cfg.MaxRetries),
		ledger.WithLogger(d.Logger),
	)

	var cache wallet.SnapshotCache
	notifiers := notification.Multi{notification.NewLoggerNotifier(d.Logger)}
	if d.Cache != nil {
		cache = wallet.NewRedisCache(d.Cache, d.Cfg.WalletCacheTTL)
		notifiers = append(notifiers, notification.NewRedisNotifier(d.Cache, notification.DefaultChannel))
	}

	userSvc := users.NewService(store, engine, d.Cfg.MaxInitialBalance, d.Logger)
	walletSvc := wallet.NewService(engine, cache, notifiers, d.Logger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	limiter := middleware.UserRateLimit(d.Cache, d.Cfg.RateLimitPerMinute, d.Logger)
	RegisterUserRoutes(api, users.NewHandler(userSvc), limiter)
	RegisterWalletRoutes(api, wallet.NewHandler(walletSvc), limiter)

	return nil
}

func buildStore(ctx context.Context, d Deps) (ledger.Store, error) {
	switch d.Cfg.StoreDriver {
	case config.DriverPgx:
		if d.DB == nil {
			return nil, fmt.Errorf("store driver %s requires a postgres pool", d.Cfg.StoreDriver)
		}
		store := ledger.NewPostgresStore(d.DB)
		if d.Cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, nil
	case config.DriverGorm:
		if d.Gorm == nil {
			return nil, fmt.Errorf("store driver %s requires a gorm connection", d.Cfg.StoreDriver)
		}
		store := ledger.NewGormStore(d.Gorm)
		if d.Cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, nil
	default:
		d.Logger.Warn("using in-memory ledger store; balances are lost on restart")
		return ledger.NewInMemory(), nil
	}
}

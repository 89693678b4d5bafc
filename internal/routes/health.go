package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds a readiness endpoint that pings every configured backend.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{"store": d.Cfg.StoreDriver}
		healthy := true
		check := func(name string, ping func(context.Context) error) {
			status := "ok"
			if err := ping(ctx); err != nil {
				status = err.Error()
				healthy = false
			}
			checks[name] = status
		}

		if d.DB != nil {
			check("postgres", d.DB.Ping)
		}
		if d.Gorm != nil {
			check("gorm", func(ctx context.Context) error {
				sqlDB, err := d.Gorm.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			})
		}
		if d.Cache != nil {
			check("redis", func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() })
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

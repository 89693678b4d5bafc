package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/users"
)

// RegisterUserRoutes wires user endpoints. Creation is rate limited per client.
func RegisterUserRoutes(r fiber.Router, h *users.Handler, limiter fiber.Handler) {
	r.Post("/users", limiter, h.Create)
	r.Get("/users/:id", h.Get)
}

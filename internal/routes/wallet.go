package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints under the owning user.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, limiter fiber.Handler) {
	w := r.Group("/users/:id")
	w.Get("/wallet", h.Info)
	w.Post("/wallet/deposit", limiter, h.Deposit)
	w.Post("/wallet/withdraw", limiter, h.Withdraw)
	w.Post("/wallet/transfer", limiter, h.Transfer)
	w.Get("/transactions", h.History)
}

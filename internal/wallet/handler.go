package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/httpx"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type transferRequest struct {
	ToUserID string `json:"to_user_id" validate:"required"`
	Amount   int64  `json:"amount"`
}

type transferResponse struct {
	TransactionID string    `json:"transaction_id"`
	FromUserID    string    `json:"from_user_id"`
	ToUserID      string    `json:"to_user_id"`
	Amount        int64     `json:"amount"`
	FromBalance   int64     `json:"from_balance"`
	ToBalance     int64     `json:"to_balance"`
	CompletedAt   time.Time `json:"completed_at"`
}

type transactionResponse struct {
	ID                  string    `json:"id"`
	WalletID            string    `json:"wallet_id"`
	UserID              string    `json:"user_id"`
	DestinationWalletID string    `json:"destination_wallet_id,omitempty"`
	DestinationUserID   string    `json:"destination_user_id,omitempty"`
	Amount              int64     `json:"amount"`
	Type                string    `json:"type"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Info handles GET /users/:id/wallet.
func (h *Handler) Info(c *fiber.Ctx) error {
	w, err := h.service.Info(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.FromLedger(err)
	}
	return c.Status(http.StatusOK).JSON(httpx.NewWalletView(w))
}

// Deposit handles POST /users/:id/wallet/deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	w, err := h.service.Deposit(c.UserContext(), c.Params("id"), req.Amount)
	if err != nil {
		return httpx.FromLedger(err)
	}
	return c.Status(http.StatusOK).JSON(httpx.NewWalletView(w))
}

// Withdraw handles POST /users/:id/wallet/withdraw.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	w, err := h.service.Withdraw(c.UserContext(), c.Params("id"), req.Amount)
	if err != nil {
		return httpx.FromLedger(err)
	}
	return c.Status(http.StatusOK).JSON(httpx.NewWalletView(w))
}

// Transfer handles POST /users/:id/wallet/transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Transfer(c.UserContext(), c.Params("id"), req.ToUserID, req.Amount)
	if err != nil {
		return httpx.FromLedger(err)
	}
	return c.Status(http.StatusOK).JSON(transferResponse{
		TransactionID: res.TransactionID,
		FromUserID:    res.FromUserID,
		ToUserID:      res.ToUserID,
		Amount:        res.Amount,
		FromBalance:   res.FromBalance,
		ToBalance:     res.ToBalance,
		CompletedAt:   res.CompletedAt,
	})
}

// History handles GET /users/:id/transactions.
func (h *Handler) History(c *fiber.Ctx) error {
	txs, err := h.service.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.FromLedger(err)
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:                  t.ID,
			WalletID:            t.WalletID,
			UserID:              t.UserID,
			DestinationWalletID: t.DestinationWalletID,
			DestinationUserID:   t.DestinationUserID,
			Amount:              t.Amount,
			Type:                string(t.Type),
			Status:              string(t.Status),
			CreatedAt:           t.CreatedAt,
			UpdatedAt:           t.UpdatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(out)
}

package users

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/httpx"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
)

// Handler exposes user endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a user HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	InitialBalance int64  `json:"initial_balance" validate:"gte=0"`
}

// UserResponse is the JSON view of a user.
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse converts a ledger user.
func NewUserResponse(u ledger.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
}

// Create handles POST /users.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	created, err := h.service.Create(c.UserContext(), req.Name, req.InitialBalance)
	if err != nil {
		return httpx.FromLedger(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user":   NewUserResponse(created.User),
		"wallet": httpx.NewWalletView(created.Wallet),
	})
}

// Get handles GET /users/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.FromLedger(err)
	}
	return c.Status(http.StatusOK).JSON(NewUserResponse(user))
}

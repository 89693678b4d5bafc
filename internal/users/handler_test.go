package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/httpx"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, _, _ := newTestService(t, 1_000_000)
	h := NewHandler(svc)
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(nil)})
	app.Post("/users", h.Create)
	app.Get("/users/:id", h.Get)
	return app
}

func TestHandlerCreateAndGet(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"name":"Ada","initial_balance":1000}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		User   UserResponse     `json:"user"`
		Wallet httpx.WalletView `json:"wallet"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "Ada", body.User.Name)
	assert.Equal(t, int64(1000), body.Wallet.Balance)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/users/"+body.User.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/users/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerCreateRejectsBadInput(t *testing.T) {
	app := newTestApp(t)

	for _, payload := range []string{
		`{"initial_balance":10}`,
		`{"name":"Ada","initial_balance":-5}`,
		`{"name":"Ada","initial_balance":1000001}`,
		`{"name":`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(payload))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
	}
}

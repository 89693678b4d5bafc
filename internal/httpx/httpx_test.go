package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
)

type sampleRequest struct {
	ToUserID string `json:"to_user_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"gt=0"`
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	app.Post("/bind", func(c *fiber.Ctx) error {
		var req sampleRequest
		if err := Bind(c, &req); err != nil {
			return err
		}
		return c.JSON(req)
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return FromLedger(fmt.Errorf("%w: %w", ledger.ErrWalletUpdateFailed, errors.New("pq: connection reset")))
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, ErrorBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var eb ErrorBody
	_ = json.Unmarshal(raw, &eb)
	return resp.StatusCode, eb
}

func TestBindValidates(t *testing.T) {
	app := newApp()

	status, _ := do(t, app, http.MethodPost, "/bind", `{"to_user_id":"b","amount":5}`)
	assert.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodPost, "/bind", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body.Error, "to_user_id is required")
	assert.Contains(t, body.Error, "amount must be greater than 0")

	status, body = do(t, app, http.MethodPost, "/bind", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid request body", body.Error)
}

func TestErrorHandlerHidesInternalCauses(t *testing.T) {
	app := newApp()

	status, body := do(t, app, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ledger.ErrWalletUpdateFailed.Error(), body.Error)

	status, body = do(t, app, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", body.Error)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		ledger.ErrInvalidUserID:             http.StatusBadRequest,
		ledger.ErrNonPositiveAmount:         http.StatusBadRequest,
		ledger.ErrSameUserTransfer:          http.StatusBadRequest,
		ledger.ErrInsufficientBalance:       http.StatusBadRequest,
		ledger.ErrInitialBalanceOutOfRange:  http.StatusBadRequest,
		ledger.ErrWalletNotFound:            http.StatusNotFound,
		ledger.ErrDestinationWalletNotFound: http.StatusNotFound,
		ledger.ErrUserNotFound:              http.StatusNotFound,
		ledger.ErrBalanceOverflow:           http.StatusInternalServerError,
		ledger.ErrTransactionCreationFailed: http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestNewWalletViewHidesVersion(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	view := NewWalletView(ledger.Wallet{ID: "w1", UserID: "u1", Balance: 9, Version: 7, CreatedAt: now, UpdatedAt: now})

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"w1","user_id":"u1","balance":9,"created_at":"2024-03-01T12:00:00Z","updated_at":"2024-03-01T12:00:00Z"}`, string(raw))
}

package wallet

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/httpx"
)

func newTestApp(t *testing.T, balances map[string]int64) *fiber.App {
	t.Helper()
	h := NewHandler(NewService(seededEngine(t, balances), nil, nil, nil))
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(nil)})
	app.Get("/users/:id/wallet", h.Info)
	app.Post("/users/:id/wallet/deposit", h.Deposit)
	app.Post("/users/:id/wallet/withdraw", h.Withdraw)
	app.Post("/users/:id/wallet/transfer", h.Transfer)
	app.Get("/users/:id/transactions", h.History)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandlerDepositWithdraw(t *testing.T) {
	app := newTestApp(t, map[string]int64{"u1": 1000})

	var w httpx.WalletView
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/users/u1/wallet/deposit", `{"amount":500}`, &w))
	assert.Equal(t, int64(1500), w.Balance)

	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/users/u1/wallet/withdraw", `{"amount":1500}`, &w))
	assert.Equal(t, int64(0), w.Balance)

	var e httpx.ErrorBody
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/users/u1/wallet/withdraw", `{"amount":1}`, &e))
	assert.Equal(t, "insufficient balance", e.Error)

	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/users/u1/wallet/deposit", `{"amount":0}`, &e))
	assert.Equal(t, "amount must be positive", e.Error)

	assert.Equal(t, http.StatusNotFound, call(t, app, http.MethodPost, "/users/ghost/wallet/deposit", `{"amount":5}`, nil))
	assert.Equal(t, http.StatusNotFound, call(t, app, http.MethodGet, "/users/ghost/wallet", "", nil))

	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/users/u1/wallet", "", &w))
	assert.Equal(t, "u1", w.UserID)
}

func TestHandlerTransferAndHistory(t *testing.T) {
	app := newTestApp(t, map[string]int64{"a": 2000, "b": 1000})

	var res transferResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/users/a/wallet/transfer", `{"to_user_id":"b","amount":500}`, &res))
	assert.Equal(t, int64(1500), res.FromBalance)
	assert.Equal(t, int64(1500), res.ToBalance)

	for _, user := range []string{"a", "b"} {
		var txs []transactionResponse
		require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/users/"+user+"/transactions", "", &txs))
		require.Len(t, txs, 1)
		assert.Equal(t, "TRANSFER", txs[0].Type)
		assert.Equal(t, "COMPLETED", txs[0].Status)
		assert.Equal(t, res.TransactionID, txs[0].ID)
	}

	var e httpx.ErrorBody
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/users/a/wallet/transfer", `{"to_user_id":"a","amount":100}`, &e))
	assert.Equal(t, "cannot transfer to the same user", e.Error)

	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/users/a/wallet/transfer", `{"amount":100}`, &e))
	assert.Equal(t, "to_user_id is required", e.Error)

	assert.Equal(t, http.StatusNotFound, call(t, app, http.MethodPost, "/users/a/wallet/transfer", `{"to_user_id":"ghost","amount":100}`, nil))
}

func TestHandlerHistoryUnknownUserIsEmpty(t *testing.T) {
	app := newTestApp(t, nil)

	var txs []transactionResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/users/nobody/transactions", "", &txs))
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/config"
	"github.com/congo-pay/wallet-ledger/internal/httpx"
	"github.com/congo-pay/wallet-ledger/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:            "WalletLedgerTest",
		AppEnv:             "test",
		StoreDriver:        config.DriverMemory,
		IdempotencyTTL:     time.Minute,
		WalletCacheTTL:     time.Minute,
		MaxRetries:         3,
		MaxInitialBalance:  1_000_000,
		RateLimitPerMinute: 1000,
	}
}

func newApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logger)})
	require.NoError(t, Setup(app, Deps{Cfg: testConfig(), Cache: cache, Logger: logger}))
	return app, mr
}

type result struct {
	status int
	header http.Header
	body   []byte
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers ...string) result {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return result{status: resp.StatusCode, header: resp.Header, body: raw}
}

func createUser(t *testing.T, app *fiber.App, name string, balance int64) string {
	t.Helper()
	res := do(t, app, http.MethodPost, "/api/v1/users", `{"name":"`+name+`","initial_balance":`+jsonInt(balance)+`}`)
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Wallet struct {
			Balance int64 `json:"balance"`
		} `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(res.body, &out))
	require.Equal(t, balance, out.Wallet.Balance)
	return out.User.ID
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func balanceOf(t *testing.T, app *fiber.App, userID string) int64 {
	t.Helper()
	res := do(t, app, http.MethodGet, "/api/v1/users/"+userID+"/wallet", "")
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	var w struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(res.body, &w))
	return w.Balance
}

func errorMessage(t *testing.T, res result) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(res.body, &body))
	return body.Error
}

func TestWalletFlow(t *testing.T) {
	app, _ := newApp(t)

	ada := createUser(t, app, "Ada", 100)
	bob := createUser(t, app, "Bob", 0)

	res := do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/deposit", `{"amount":50}`)
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	assert.Equal(t, int64(150), balanceOf(t, app, ada))

	res = do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/withdraw", `{"amount":500}`)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "insufficient balance", errorMessage(t, res))

	res = do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/withdraw", `{"amount":30}`)
	require.Equal(t, http.StatusOK, res.status)

	res = do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/transfer", `{"to_user_id":"`+bob+`","amount":70}`)
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	var transfer struct {
		TransactionID string `json:"transaction_id"`
		FromBalance   int64  `json:"from_balance"`
		ToBalance     int64  `json:"to_balance"`
	}
	require.NoError(t, json.Unmarshal(res.body, &transfer))
	assert.NotEmpty(t, transfer.TransactionID)
	assert.Equal(t, int64(50), transfer.FromBalance)
	assert.Equal(t, int64(70), transfer.ToBalance)

	assert.Equal(t, int64(50), balanceOf(t, app, ada))
	assert.Equal(t, int64(70), balanceOf(t, app, bob))

	res = do(t, app, http.MethodGet, "/api/v1/users/"+bob+"/transactions", "")
	require.Equal(t, http.StatusOK, res.status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(res.body, &history))
	require.Len(t, history, 1)
	assert.Equal(t, transfer.TransactionID, history[0]["id"])
	assert.Equal(t, bob, history[0]["destination_user_id"])

	res = do(t, app, http.MethodGet, "/api/v1/users/"+ada+"/transactions", "")
	require.NoError(t, json.Unmarshal(res.body, &history))
	assert.Len(t, history, 3)
}

func TestStatusMapping(t *testing.T) {
	app, _ := newApp(t)
	ada := createUser(t, app, "Ada", 10)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown user", http.MethodGet, "/api/v1/users/ghost", "", http.StatusNotFound},
		{"unknown wallet", http.MethodGet, "/api/v1/users/ghost/wallet", "", http.StatusNotFound},
		{"blank name", http.MethodPost, "/api/v1/users", `{"name":"","initial_balance":1}`, http.StatusBadRequest},
		{"negative initial balance", http.MethodPost, "/api/v1/users", `{"name":"x","initial_balance":-1}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/users/" + ada + "/wallet/deposit", `{"amount":`, http.StatusBadRequest},
		{"zero deposit", http.MethodPost, "/api/v1/users/" + ada + "/wallet/deposit", `{"amount":0}`, http.StatusBadRequest},
		{"deposit to unknown", http.MethodPost, "/api/v1/users/ghost/wallet/deposit", `{"amount":5}`, http.StatusNotFound},
		{"self transfer", http.MethodPost, "/api/v1/users/" + ada + "/wallet/transfer", `{"to_user_id":"` + ada + `","amount":1}`, http.StatusBadRequest},
		{"transfer to unknown", http.MethodPost, "/api/v1/users/" + ada + "/wallet/transfer", `{"to_user_id":"ghost","amount":1}`, http.StatusNotFound},
		{"missing receiver", http.MethodPost, "/api/v1/users/" + ada + "/wallet/transfer", `{"amount":1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := do(t, app, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, res.status, string(res.body))
			assert.NotEmpty(t, errorMessage(t, res))
		})
	}

	res := do(t, app, http.MethodGet, "/api/v1/users/ghost/transactions", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `[]`, string(res.body))
	assert.Equal(t, int64(10), balanceOf(t, app, ada))
}

func TestTransferIsIdempotent(t *testing.T) {
	app, _ := newApp(t)
	ada := createUser(t, app, "Ada", 100)
	bob := createUser(t, app, "Bob", 0)

	body := `{"to_user_id":"` + bob + `","amount":40}`
	first := do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/transfer", body, "Idempotency-Key", "tx-1")
	require.Equal(t, http.StatusOK, first.status)
	second := do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/transfer", body, "Idempotency-Key", "tx-1")
	require.Equal(t, http.StatusOK, second.status)

	assert.Equal(t, "true", second.header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(first.body), string(second.body))
	assert.Equal(t, int64(60), balanceOf(t, app, ada))
	assert.Equal(t, int64(40), balanceOf(t, app, bob))

	conflict := do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/transfer", `{"to_user_id":"`+bob+`","amount":41}`, "Idempotency-Key", "tx-1")
	assert.Equal(t, http.StatusUnprocessableEntity, conflict.status)
}

func TestWalletCacheIsInvalidated(t *testing.T) {
	app, mr := newApp(t)
	ada := createUser(t, app, "Ada", 5)

	assert.Equal(t, int64(5), balanceOf(t, app, ada))
	assert.True(t, mr.Exists("wallet:v1:"+ada))

	res := do(t, app, http.MethodPost, "/api/v1/users/"+ada+"/wallet/deposit", `{"amount":5}`)
	require.Equal(t, http.StatusOK, res.status)
	assert.False(t, mr.Exists("wallet:v1:"+ada))
	assert.Equal(t, int64(10), balanceOf(t, app, ada))
}

func TestHealthAndPing(t *testing.T) {
	app, mr := newApp(t)

	res := do(t, app, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, string(res.body), `"redis":"ok"`)
	assert.Contains(t, string(res.body), `"store":"memory"`)

	res = do(t, app, http.MethodGet, "/api/v1/ping", "", "X-Request-ID", "abc")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, string(res.body), `"request_id":"abc"`)

	mr.Close()
	res = do(t, app, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.status)
}

func TestSetupRequiresBackendsOutsideDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	require.Error(t, err)

	cfg = testConfig()
	cfg.StoreDriver = config.DriverPgx
	err = Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	require.ErrorContains(t, err, "postgres pool")
}

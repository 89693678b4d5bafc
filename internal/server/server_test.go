package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/config"
	"github.com/congo-pay/wallet-ledger/internal/httpx"
	"github.com/congo-pay/wallet-ledger/internal/logging"
	"github.com/congo-pay/wallet-ledger/internal/routes"
)

func TestServerRendersErrorsAsJSON(t *testing.T) {
	srv, err := New(routes.Deps{
		Cfg: config.Config{
			AppEnv:            "test",
			StoreDriver:       config.DriverMemory,
			MaxRetries:        3,
			MaxInitialBalance: 100,
			ShutdownPeriod:    time.Second,
		},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(`{"name":"Ada","initial_balance":101}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "initial balance out of range", body.Error)
}

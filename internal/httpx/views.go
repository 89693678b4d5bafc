package httpx

import (
	"time"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
)

// WalletView is the JSON view of a wallet returned by user and wallet endpoints.
type WalletView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWalletView converts a ledger wallet. The version counter stays internal.
func NewWalletView(w ledger.Wallet) WalletView {
	return WalletView{ID: w.ID, UserID: w.UserID, Balance: w.Balance, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
}

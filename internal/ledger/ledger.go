package ledger

import "time"

// Type classifies a balance-affecting event.
type Type string

const (
	TypeDeposit    Type = "DEPOSIT"
	TypeWithdrawal Type = "WITHDRAWAL"
	TypeTransfer   Type = "TRANSFER"
)

// Status of a transaction record. Only StatusCompleted is ever assigned; the
// other values exist so stored rows written by a future cancellation flow can
// still be decoded.
type Status string

const (
	StatusCompleted     Status = "COMPLETED"
	StatusPendingCancel Status = "PENDING_CANCEL"
	StatusCancelled     Status = "CANCELLED"
)

// User is the owner of exactly one wallet.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Wallet holds the balance of a single user in minor units.
type Wallet struct {
	ID        string
	UserID    string
	Balance   int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is the write-once audit record of a balance change.
// DestinationWalletID and DestinationUserID are set only for transfers.
type Transaction struct {
	ID                  string
	WalletID            string
	UserID              string
	DestinationWalletID string
	DestinationUserID   string
	Amount              int64
	Type                Type
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Involves reports whether userID is the origin or the destination of t.
func (t Transaction) Involves(userID string) bool {
	return t.UserID == userID || (t.DestinationUserID != "" && t.DestinationUserID == userID)
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	TransactionID string
	FromUserID    string
	ToUserID      string
	Amount        int64
	FromBalance   int64
	ToBalance     int64
	CompletedAt   time.Time
}

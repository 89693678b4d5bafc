package ledger

import "context"

// AnyVersion makes CompareAndSetBalance skip the version check. Only safe when
// the caller already holds a row lock on the wallet.
const AnyVersion int64 = -1

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id string) (User, error)
}

// WalletStore persists wallets. GetByUserID returns ErrWalletNotFound when the
// user has no wallet. CompareAndSetBalance returns ErrBalanceConflict when the
// stored version differs from expectedVersion and bumps the version on success.
type WalletStore interface {
	GetByUserID(ctx context.Context, userID string) (Wallet, error)
	Create(ctx context.Context, wallet Wallet) (Wallet, error)
	CompareAndSetBalance(ctx context.Context, walletID string, expectedVersion, balance int64) (Wallet, error)
}

// TransactionStore is the append-only transaction log. Append rejects a
// record whose ID already exists with ErrDuplicateTransaction.
type TransactionStore interface {
	Append(ctx context.Context, tx Transaction) (Transaction, error)
	ListByParticipant(ctx context.Context, userID string) ([]Transaction, error)
}

// Stores groups the repositories visible inside (or outside) an atomic scope.
type Stores interface {
	Users() UserStore
	Wallets() WalletStore
	Transactions() TransactionStore
}

// Store is a storage backend able to run a function as one atomic unit.
//
// WithinTx commits every mutation made through tx if fn returns nil and
// discards all of them otherwise. When ctx already carries a scope opened by
// the same Store, fn joins it instead of starting a new one.
type Store interface {
	Stores
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}

type scopeKey struct{}

type scope struct {
	owner any
	tx    Stores
}

func withScope(ctx context.Context, owner any, tx Stores) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope{owner: owner, tx: tx})
}

func scopeFrom(ctx context.Context) (scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(scope)
	return sc, ok
}

// InScope reports whether ctx carries an open atomic scope.
func InScope(ctx context.Context) bool {
	_, ok := scopeFrom(ctx)
	return ok
}

// joinScope returns the open scope for owner, if any.
func joinScope(ctx context.Context, owner any) (Stores, bool) {
	sc, ok := scopeFrom(ctx)
	if !ok || sc.owner != owner {
		return nil, false
	}
	return sc.tx, true
}

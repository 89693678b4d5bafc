package ledger

import (
	"context"
	"sync"
	"time"
)

// inMemoryStore keeps committed state in maps guarded by mu. Scopes stage
// their writes privately and validate wallet versions when they commit, so
// two scopes touching different wallets never wait on each other except for
// the commit itself.
type inMemoryStore struct {
	mu           sync.RWMutex
	users        map[string]User
	wallets      map[string]Wallet
	walletByUser map[string]string
	transactions map[string]Transaction
}

// NewInMemory creates a concurrency-safe in-memory store, used by tests and
// by development runs without DATABASE_URL.
func NewInMemory() Store {
	return &inMemoryStore{
		users:        make(map[string]User),
		wallets:      make(map[string]Wallet),
		walletByUser: make(map[string]string),
		transactions: make(map[string]Transaction),
	}
}

func (s *inMemoryStore) Users() UserStore { return memUsers{s: s} }
func (s *inMemoryStore) Wallets() WalletStore { return memWallets{s: s} }
func (s *inMemoryStore) Transactions() TransactionStore { return memTransactions{s: s} }

func (s *inMemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	if tx, ok := joinScope(ctx, s); ok {
		return fn(ctx, tx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newMemTx(s)
	if err := fn(withScope(ctx, s, tx), tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return AsCreationFailure(s.commit(tx))
}

func (s *inMemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range tx.users {
		if _, exists := s.users[id]; exists {
			return ErrDuplicateUser
		}
	}
	for id, w := range tx.wallets {
		base, existing := tx.baseVersions[id]
		if !existing {
			if _, taken := s.walletByUser[w.UserID]; taken {
				return ErrDuplicateWallet
			}
			if _, taken := s.wallets[id]; taken {
				return ErrDuplicateWallet
			}
			continue
		}
		current, ok := s.wallets[id]
		if !ok {
			return ErrWalletNotFound
		}
		if current.Version != base {
			return ErrBalanceConflict
		}
	}
	for _, t := range tx.transactions {
		if _, exists := s.transactions[t.ID]; exists {
			return ErrDuplicateTransaction
		}
	}

	for id, u := range tx.users {
		s.users[id] = u
	}
	for id, w := range tx.wallets {
		s.wallets[id] = w
		s.walletByUser[w.UserID] = id
	}
	for _, t := range tx.transactions {
		s.transactions[t.ID] = t
	}
	return nil
}

func (s *inMemoryStore) walletForUser(userID string) (Wallet, bool) {
	id, ok := s.walletByUser[userID]
	if !ok {
		return Wallet{}, false
	}
	w, ok := s.wallets[id]
	return w, ok
}

type memUsers struct{ s *inMemoryStore }

func (r memUsers) Create(_ context.Context, user User) (User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.users[user.ID]; exists {
		return User{}, ErrDuplicateUser
	}
	r.s.users[user.ID] = user
	return user, nil
}

func (r memUsers) Get(_ context.Context, id string) (User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

type memWallets struct{ s *inMemoryStore }

func (r memWallets) GetByUserID(_ context.Context, userID string) (Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.walletForUser(userID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (r memWallets) Create(_ context.Context, wallet Wallet) (Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.walletByUser[wallet.UserID]; taken {
		return Wallet{}, ErrDuplicateWallet
	}
	if _, taken := r.s.wallets[wallet.ID]; taken {
		return Wallet{}, ErrDuplicateWallet
	}
	r.s.wallets[wallet.ID] = wallet
	r.s.walletByUser[wallet.UserID] = wallet.ID
	return wallet, nil
}

func (r memWallets) CompareAndSetBalance(_ context.Context, walletID string, expectedVersion, balance int64) (Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if expectedVersion != AnyVersion && w.Version != expectedVersion {
		return Wallet{}, ErrBalanceConflict
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	r.s.wallets[walletID] = w
	return w, nil
}

type memTransactions struct{ s *inMemoryStore }

func (r memTransactions) Append(_ context.Context, t Transaction) (Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.transactions[t.ID]; exists {
		return Transaction{}, ErrDuplicateTransaction
	}
	r.s.transactions[t.ID] = t
	return t, nil
}

func (r memTransactions) ListByParticipant(_ context.Context, userID string) ([]Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, t := range r.s.transactions {
		if t.Involves(userID) {
			out = append(out, t)
		}
	}
	SortHistory(out)
	return out, nil
}

// memTx stages writes made inside one scope. Reads see committed state with
// the scope's own writes layered on top.
type memTx struct {
	s            *inMemoryStore
	mu           sync.Mutex
	users        map[string]User
	wallets      map[string]Wallet
	baseVersions map[string]int64
	transactions []Transaction
}

func newMemTx(s *inMemoryStore) *memTx {
	return &memTx{
		s:            s,
		users:        make(map[string]User),
		wallets:      make(map[string]Wallet),
		baseVersions: make(map[string]int64),
	}
}

func (tx *memTx) Users() UserStore { return memTxUsers{tx} }
func (tx *memTx) Wallets() WalletStore { return memTxWallets{tx} }
func (tx *memTx) Transactions() TransactionStore { return memTxTransactions{tx} }

// visibleWallet must be called with tx.mu held.
func (tx *memTx) visibleWallet(walletID string) (Wallet, bool) {
	if w, ok := tx.wallets[walletID]; ok {
		return w, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	w, ok := tx.s.wallets[walletID]
	return w, ok
}

type memTxUsers struct{ tx *memTx }

func (r memTxUsers) Create(_ context.Context, user User) (User, error) {
	r.tx.mu.Lock()
	defer r.tx.mu.Unlock()
	if _, staged := r.tx.users[user.ID]; staged {
		return User{}, ErrDuplicateUser
	}
	r.tx.s.mu.RLock()
	_, exists := r.tx.s.users[user.ID]
	r.tx.s.mu.RUnlock()
	if exists {
		return User{}, ErrDuplicateUser
	}
	r.tx.users[user.ID] = user
	return user, nil
}

func (r memTxUsers) Get(ctx context.Context, id string) (User, error) {
	r.tx.mu.Lock()
	u, ok := r.tx.users[id]
	r.tx.mu.Unlock()
	if ok {
		return u, nil
	}
	return memUsers{r.tx.s}.Get(ctx, id)
}

type memTxWallets struct{ tx *memTx }

func (r memTxWallets) GetByUserID(_ context.Context, userID string) (Wallet, error) {
	r.tx.mu.Lock()
	defer r.tx.mu.Unlock()
	for _, w := range r.tx.wallets {
		if w.UserID == userID {
			return w, nil
		}
	}
	r.tx.s.mu.RLock()
	defer r.tx.s.mu.RUnlock()
	w, ok := r.tx.s.walletForUser(userID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (r memTxWallets) Create(_ context.Context, wallet Wallet) (Wallet, error) {
	r.tx.mu.Lock()
	defer r.tx.mu.Unlock()
	for _, w := range r.tx.wallets {
		if w.UserID == wallet.UserID || w.ID == wallet.ID {
			return Wallet{}, ErrDuplicateWallet
		}
	}
	r.tx.s.mu.RLock()
	_, userTaken := r.tx.s.walletByUser[wallet.UserID]
	_, idTaken := r.tx.s.wallets[wallet.ID]
	r.tx.s.mu.RUnlock()
	if userTaken || idTaken {
		return Wallet{}, ErrDuplicateWallet
	}
	r.tx.wallets[wallet.ID] = wallet
	return wallet, nil
}

func (r memTxWallets) CompareAndSetBalance(_ context.Context, walletID string, expectedVersion, balance int64) (Wallet, error) {
	r.tx.mu.Lock()
	defer r.tx.mu.Unlock()
	w, ok := r.tx.visibleWallet(walletID)
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if expectedVersion != AnyVersion && w.Version != expectedVersion {
		return Wallet{}, ErrBalanceConflict
	}
	if _, staged := r.tx.wallets[walletID]; !staged {
		r.tx.baseVersions[walletID] = w.Version
	}
	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	r.tx.wallets[walletID] = w
	return w, nil
}

type memTxTransactions struct{ tx *memTx }

func (r memTxTransactions) Append(_ context.Context, t Transaction) (Transaction, error) {
	r.tx.mu.Lock()
	defer r.tx.mu.Unlock()
	for _, staged := range r.tx.transactions {
		if staged.ID == t.ID {
			return Transaction{}, ErrDuplicateTransaction
		}
	}
	r.tx.s.mu.RLock()
	_, exists := r.tx.s.transactions[t.ID]
	r.tx.s.mu.RUnlock()
	if exists {
		return Transaction{}, ErrDuplicateTransaction
	}
	r.tx.transactions = append(r.tx.transactions, t)
	return t, nil
}

func (r memTxTransactions) ListByParticipant(ctx context.Context, userID string) ([]Transaction, error) {
	out, err := memTransactions{r.tx.s}.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.tx.mu.Lock()
	for _, t := range r.tx.transactions {
		if t.Involves(userID) {
			out = append(out, t)
		}
	}
	r.tx.mu.Unlock()
	SortHistory(out)
	return out, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries bounds how often a scope that lost a balance race is rerun.
const DefaultMaxRetries = 3

// Engine executes wallet operations so that each balance change and its
// transaction record commit together or not at all.
type Engine struct {
	store      Store
	now        func() time.Time
	newID      func() string
	maxRetries int
	logger     *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides how wallet and transaction identifiers are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithMaxRetries sets the number of reruns after a balance conflict.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an engine on top of store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		maxRetries: DefaultMaxRetries,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateWalletForUser stores a wallet with the given opening balance. It
// performs no existence check of its own; a second wallet for the same user is
// rejected by the store and reported as ErrWalletCreationFailed. When ctx
// carries an open scope the write joins it.
func (e *Engine) CreateWalletForUser(ctx context.Context, userID string, initialBalance int64) (Wallet, error) {
	if err := ValidateUserID(userID); err != nil {
		return Wallet{}, err
	}

	var created Wallet
	err := e.atomic(ctx, "create_wallet", func(ctx context.Context, tx Stores) error {
		now := e.now()
		w, err := tx.Wallets().Create(ctx, Wallet{
			ID:        e.newID(),
			UserID:    userID,
			Balance:   initialBalance,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return wrapFailure(ErrWalletCreationFailed, err)
		}
		created = w
		return nil
	})
	if err != nil {
		e.logFailure("create_wallet", err, slog.String("user_id", userID))
		return Wallet{}, err
	}

	e.logger.Info("ledger.create_wallet completed",
		slog.String("user_id", userID),
		slog.String("wallet_id", created.ID),
		slog.Int64("balance", created.Balance),
	)
	return created, nil
}

// Deposit credits amount to the user's wallet and records a DEPOSIT.
func (e *Engine) Deposit(ctx context.Context, userID string, amount int64) (Wallet, error) {
	if err := ValidateBalanceChange(userID, amount); err != nil {
		return Wallet{}, err
	}

	var updated Wallet
	err := e.atomic(ctx, "deposit", func(ctx context.Context, tx Stores) error {
		w, err := loadWallet(ctx, tx, userID, ErrWalletNotFound)
		if err != nil {
			return err
		}
		next, err := addBalance(w.Balance, amount)
		if err != nil {
			return err
		}
		if updated, err = setBalance(ctx, tx, w, next); err != nil {
			return err
		}
		return e.record(ctx, tx, Transaction{
			WalletID: w.ID,
			UserID:   userID,
			Amount:   amount,
			Type:     TypeDeposit,
		}, nil)
	})
	if err != nil {
		e.logFailure("deposit", err, slog.String("user_id", userID), slog.Int64("amount", amount))
		return Wallet{}, err
	}

	e.logger.Info("ledger.deposit completed",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.Int64("balance", updated.Balance),
	)
	return updated, nil
}

// Withdraw debits amount from the user's wallet and records a WITHDRAWAL.
// The balance check runs against the value read inside the scope, before
// anything is written.
func (e *Engine) Withdraw(ctx context.Context, userID string, amount int64) (Wallet, error) {
	if err := ValidateBalanceChange(userID, amount); err != nil {
		return Wallet{}, err
	}

	var updated Wallet
	err := e.atomic(ctx, "withdraw", func(ctx context.Context, tx Stores) error {
		w, err := loadWallet(ctx, tx, userID, ErrWalletNotFound)
		if err != nil {
			return err
		}
		if w.Balance < amount {
			return ErrInsufficientBalance
		}
		if updated, err = setBalance(ctx, tx, w, w.Balance-amount); err != nil {
			return err
		}
		return e.record(ctx, tx, Transaction{
			WalletID: w.ID,
			UserID:   userID,
			Amount:   amount,
			Type:     TypeWithdrawal,
		}, nil)
	})
	if err != nil {
		e.logFailure("withdraw", err, slog.String("user_id", userID), slog.Int64("amount", amount))
		return Wallet{}, err
	}

	e.logger.Info("ledger.withdraw completed",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.Int64("balance", updated.Balance),
	)
	return updated, nil
}

// Transfer moves amount between two users' wallets and records one TRANSFER
// visible to both. Steps run in the order validate, debit sender, credit
// receiver, log; a missing receiver is only detected after the tentative
// debit, which is then discarded with the rest of the scope.
func (e *Engine) Transfer(ctx context.Context, fromUserID, toUserID string, amount int64) (TransferResult, error) {
	if err := ValidateTransfer(fromUserID, toUserID, amount); err != nil {
		return TransferResult{}, err
	}

	var res TransferResult
	err := e.atomic(ctx, "transfer", func(ctx context.Context, tx Stores) error {
		from, err := loadWallet(ctx, tx, fromUserID, ErrSourceWalletNotFound)
		if err != nil {
			return err
		}
		if from.Balance < amount {
			return ErrInsufficientBalance
		}
		debited, err := setBalance(ctx, tx, from, from.Balance-amount)
		if err != nil {
			return err
		}

		to, err := loadWallet(ctx, tx, toUserID, ErrDestinationWalletNotFound)
		if err != nil {
			return err
		}
		next, err := addBalance(to.Balance, amount)
		if err != nil {
			return err
		}
		credited, err := setBalance(ctx, tx, to, next)
		if err != nil {
			return err
		}

		var logged Transaction
		err = e.record(ctx, tx, Transaction{
			WalletID:            from.ID,
			UserID:              fromUserID,
			DestinationWalletID: to.ID,
			DestinationUserID:   toUserID,
			Amount:              amount,
			Type:                TypeTransfer,
		}, &logged)
		if err != nil {
			return err
		}

		res = TransferResult{
			TransactionID: logged.ID,
			FromUserID:    fromUserID,
			ToUserID:      toUserID,
			Amount:        amount,
			FromBalance:   debited.Balance,
			ToBalance:     credited.Balance,
			CompletedAt:   logged.CreatedAt,
		}
		return nil
	})
	if err != nil {
		e.logFailure("transfer", err,
			slog.String("from_user_id", fromUserID),
			slog.String("to_user_id", toUserID),
			slog.Int64("amount", amount),
		)
		return TransferResult{}, err
	}

	e.logger.Info("ledger.transfer completed",
		slog.String("transaction_id", res.TransactionID),
		slog.String("from_user_id", fromUserID),
		slog.String("to_user_id", toUserID),
		slog.Int64("amount", amount),
	)
	return res, nil
}

// GetTransactionHistory lists every record where userID is the origin or the
// destination, newest first. Records sharing a timestamp are ordered by ID
// descending so repeated queries agree. Unknown users get an empty list.
func (e *Engine) GetTransactionHistory(ctx context.Context, userID string) ([]Transaction, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	txs, err := e.store.Transactions().ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []Transaction{}
	}
	SortHistory(txs)
	return txs, nil
}

// GetWalletInfo returns the current wallet snapshot for userID.
func (e *Engine) GetWalletInfo(ctx context.Context, userID string) (Wallet, error) {
	if err := ValidateUserID(userID); err != nil {
		return Wallet{}, err
	}
	w, err := e.store.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

// SortHistory orders records by CreatedAt descending, then ID descending.
func SortHistory(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

// atomic runs fn in one scope. A scope that fails with ErrBalanceConflict is
// rerun from scratch up to maxRetries times; joined scopes are never rerun
// because the outer owner decides whether to commit.
func (e *Engine) atomic(ctx context.Context, op string, fn func(ctx context.Context, tx Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if InScope(ctx) {
		return e.store.WithinTx(ctx, fn)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = e.store.WithinTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrBalanceConflict) {
			return AsCreationFailure(err)
		}
		if attempt >= e.maxRetries || ctx.Err() != nil {
			break
		}
		e.logger.Debug("ledger scope conflict, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
		)
	}
	if errors.Is(err, ErrWalletUpdateFailed) {
		return err
	}
	return wrapFailure(ErrWalletUpdateFailed, err)
}

func (e *Engine) record(ctx context.Context, tx Stores, t Transaction, out *Transaction) error {
	now := e.now()
	t.ID = e.newID()
	t.Status = StatusCompleted
	t.CreatedAt = now
	t.UpdatedAt = now

	saved, err := tx.Transactions().Append(ctx, t)
	if err != nil {
		return wrapFailure(ErrTransactionCreationFailed, err)
	}
	if out != nil {
		*out = saved
	}
	return nil
}

func (e *Engine) logFailure(op string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("op", op), slog.Any("error", err))
	switch {
	case IsValidation(err), IsNotFound(err), errors.Is(err, ErrInsufficientBalance):
		e.logger.Debug("ledger operation rejected", attrs...)
	default:
		e.logger.Error("ledger operation failed", attrs...)
	}
}

func loadWallet(ctx context.Context, tx Stores, userID string, notFound error) (Wallet, error) {
	w, err := tx.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return Wallet{}, notFound
		}
		return Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

func setBalance(ctx context.Context, tx Stores, w Wallet, balance int64) (Wallet, error) {
	updated, err := tx.Wallets().CompareAndSetBalance(ctx, w.ID, w.Version, balance)
	if err != nil {
		return Wallet{}, wrapFailure(ErrWalletUpdateFailed, err)
	}
	return updated, nil
}

func addBalance(balance, amount int64) (int64, error) {
	if amount > 0 && balance > math.MaxInt64-amount {
		return 0, ErrBalanceOverflow
	}
	return balance + amount, nil
}

package ledger

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ Pool = (*pgxpool.Pool)(nil)

// PostgresStore persists users, wallets and transactions in PostgreSQL using
// pgx. Wallet reads inside a scope take row locks.
type PostgresStore struct {
	db Pool
}

// NewPostgresStore constructs a pgx-backed store.
func NewPostgresStore(db Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema files in name order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		stmt, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(ctx, string(stmt)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Users() UserStore { return pgUsers{q: s.db} }
func (s *PostgresStore) Wallets() WalletStore { return pgWallets{q: s.db} }
func (s *PostgresStore) Transactions() TransactionStore { return pgTransactions{q: s.db} }

// WithinTx runs fn inside a READ COMMITTED transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	if tx, ok := joinScope(ctx, s); ok {
		return fn(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classifyPgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	stores := pgStores{q: tx, lock: true}
	if err := fn(withScope(ctx, s, stores), stores); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(err)
	}
	return nil
}

type pgStores struct {
	q    querier
	lock bool
}

func (s pgStores) Users() UserStore { return pgUsers{q: s.q} }
func (s pgStores) Wallets() WalletStore { return pgWallets{q: s.q, lock: s.lock} }
func (s pgStores) Transactions() TransactionStore { return pgTransactions{q: s.q} }

type pgUsers struct{ q querier }

func (r pgUsers) Create(ctx context.Context, user User) (User, error) {
	_, err := r.q.Exec(ctx, `INSERT INTO users (id, name, created_at) VALUES ($1, $2, $3)`,
		user.ID, user.Name, user.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, classifyPgError(err)
	}
	return user, nil
}

func (r pgUsers) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := r.q.QueryRow(ctx, `SELECT id, name, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, classifyPgError(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

type pgWallets struct {
	q    querier
	lock bool
}

const walletColumns = `id, user_id, balance, version, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func (r pgWallets) GetByUserID(ctx context.Context, userID string) (Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if r.lock {
		query += ` FOR UPDATE`
	}
	w, err := scanWallet(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, classifyPgError(err)
	}
	return w, nil
}

func (r pgWallets) Create(ctx context.Context, wallet Wallet) (Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `INSERT INTO wallets (id, user_id, balance, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+walletColumns,
		wallet.ID, wallet.UserID, wallet.Balance, wallet.Version, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC()))
	if err != nil {
		if isUniqueViolation(err) {
			return Wallet{}, ErrDuplicateWallet
		}
		return Wallet{}, classifyPgError(err)
	}
	return w, nil
}

func (r pgWallets) CompareAndSetBalance(ctx context.Context, walletID string, expectedVersion, balance int64) (Wallet, error) {
	now := time.Now().UTC()
	var row pgx.Row
	if expectedVersion == AnyVersion {
		row = r.q.QueryRow(ctx, `UPDATE wallets SET balance = $1, version = version + 1, updated_at = $2
            WHERE id = $3 RETURNING `+walletColumns, balance, now, walletID)
	} else {
		row = r.q.QueryRow(ctx, `UPDATE wallets SET balance = $1, version = version + 1, updated_at = $2
            WHERE id = $3 AND version = $4 RETURNING `+walletColumns, balance, now, walletID, expectedVersion)
	}

	w, err := scanWallet(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, classifyPgError(err)
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, walletID).Scan(&exists); err != nil {
		return Wallet{}, classifyPgError(err)
	}
	if !exists {
		return Wallet{}, ErrWalletNotFound
	}
	return Wallet{}, ErrBalanceConflict
}

type pgTransactions struct{ q querier }

const transactionColumns = `id, wallet_id, user_id, destination_wallet_id, destination_user_id, amount, type, status, created_at, updated_at`

func (r pgTransactions) Append(ctx context.Context, t Transaction) (Transaction, error) {
	_, err := r.q.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.WalletID, t.UserID, nullable(t.DestinationWalletID), nullable(t.DestinationUserID),
		t.Amount, string(t.Type), string(t.Status), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return Transaction{}, ErrDuplicateTransaction
		}
		return Transaction{}, classifyPgError(err)
	}
	return t, nil
}

func (r pgTransactions) ListByParticipant(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := r.q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE user_id = $1 OR destination_user_id = $1
        ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t                    Transaction
			destWallet, destUser *string
			kind, status         string
		)
		if err := rows.Scan(&t.ID, &t.WalletID, &t.UserID, &destWallet, &destUser,
			&t.Amount, &kind, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.DestinationWalletID = deref(destWallet)
		t.DestinationUserID = deref(destUser)
		t.Type = Type(kind)
		t.Status = Status(status)
		t.CreatedAt = t.CreatedAt.UTC()
		t.UpdatedAt = t.UpdatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return out, nil
}

// classifyPgError maps retryable SQLSTATEs onto ErrBalanceConflict.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrBalanceConflict, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

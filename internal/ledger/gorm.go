package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRow struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

type walletRow struct {
	ID        string    `gorm:"primaryKey;type:text"`
	UserID    string    `gorm:"type:text;uniqueIndex;not null"`
	Balance   int64     `gorm:"not null"`
	Version   int64     `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (walletRow) TableName() string { return "wallets" }

type transactionRow struct {
	ID                  string    `gorm:"primaryKey;type:text"`
	WalletID            string    `gorm:"type:text;not null"`
	UserID              string    `gorm:"type:text;not null;index:transactions_user_created_idx,priority:1"`
	DestinationWalletID *string   `gorm:"type:text"`
	DestinationUserID   *string   `gorm:"type:text;index:transactions_destination_user_created_idx,priority:1"`
	Amount              int64     `gorm:"not null;check:amount > 0"`
	Type                string    `gorm:"not null"`
	Status              string    `gorm:"not null"`
	CreatedAt           time.Time `gorm:"not null;index:transactions_user_created_idx,priority:2,sort:desc;index:transactions_destination_user_created_idx,priority:2,sort:desc"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (transactionRow) TableName() string { return "transactions" }

func userFromRow(r userRow) User {
	return User{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

func walletFromRow(r walletRow) Wallet {
	return Wallet{
		ID:        r.ID,
		UserID:    r.UserID,
		Balance:   r.Balance,
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func walletToRow(w Wallet) walletRow {
	return walletRow{
		ID:        w.ID,
		UserID:    w.UserID,
		Balance:   w.Balance,
		Version:   w.Version,
		CreatedAt: w.CreatedAt.UTC(),
		UpdatedAt: w.UpdatedAt.UTC(),
	}
}

func transactionToRow(t Transaction) transactionRow {
	return transactionRow{
		ID:                  t.ID,
		WalletID:            t.WalletID,
		UserID:              t.UserID,
		DestinationWalletID: nullable(t.DestinationWalletID),
		DestinationUserID:   nullable(t.DestinationUserID),
		Amount:              t.Amount,
		Type:                string(t.Type),
		Status:              string(t.Status),
		CreatedAt:           t.CreatedAt.UTC(),
		UpdatedAt:           t.UpdatedAt.UTC(),
	}
}

func transactionFromRow(r transactionRow) Transaction {
	return Transaction{
		ID:                  r.ID,
		WalletID:            r.WalletID,
		UserID:              r.UserID,
		DestinationWalletID: deref(r.DestinationWalletID),
		DestinationUserID:   deref(r.DestinationUserID),
		Amount:              r.Amount,
		Type:                Type(r.Type),
		Status:              Status(r.Status),
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

// GormStore is the gorm-backed alternative to PostgresStore. The *gorm.DB
// should be opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a gorm-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the tables from the row models.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userRow{}, &walletRow{}, &transactionRow{})
}

func (s *GormStore) Users() UserStore { return gormUsers{db: s.db} }
func (s *GormStore) Wallets() WalletStore { return gormWallets{db: s.db} }
func (s *GormStore) Transactions() TransactionStore { return gormTransactions{db: s.db} }

func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	if tx, ok := joinScope(ctx, s); ok {
		return fn(ctx, tx)
	}

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stores := gormStores{db: tx, lock: true}
		fnErr = fn(withScope(ctx, s, stores), stores)
		return fnErr
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return classifyGormError(err)
	}
	return nil
}

type gormStores struct {
	db   *gorm.DB
	lock bool
}

func (s gormStores) Users() UserStore { return gormUsers{db: s.db} }
func (s gormStores) Wallets() WalletStore { return gormWallets{db: s.db, lock: s.lock} }
func (s gormStores) Transactions() TransactionStore { return gormTransactions{db: s.db} }

type gormUsers struct{ db *gorm.DB }

func (r gormUsers) Create(ctx context.Context, user User) (User, error) {
	row := userRow{ID: user.ID, Name: user.Name, CreatedAt: user.CreatedAt.UTC()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrDuplicateUser
		}
		return User{}, classifyGormError(err)
	}
	return userFromRow(row), nil
}

func (r gormUsers) Get(ctx context.Context, id string) (User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, classifyGormError(err)
	}
	return userFromRow(row), nil
}

type gormWallets struct {
	db   *gorm.DB
	lock bool
}

func (r gormWallets) GetByUserID(ctx context.Context, userID string) (Wallet, error) {
	q := r.db.WithContext(ctx)
	if r.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row walletRow
	if err := q.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, classifyGormError(err)
	}
	return walletFromRow(row), nil
}

func (r gormWallets) Create(ctx context.Context, wallet Wallet) (Wallet, error) {
	row := walletToRow(wallet)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Wallet{}, ErrDuplicateWallet
		}
		return Wallet{}, classifyGormError(err)
	}
	return walletFromRow(row), nil
}

func (r gormWallets) CompareAndSetBalance(ctx context.Context, walletID string, expectedVersion, balance int64) (Wallet, error) {
	q := r.db.WithContext(ctx).Model(&walletRow{}).Where("id = ?", walletID)
	if expectedVersion != AnyVersion {
		q = q.Where("version = ?", expectedVersion)
	}
	res := q.Updates(map[string]any{
		"balance":    balance,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return Wallet{}, classifyGormError(res.Error)
	}

	var row walletRow
	err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wallet{}, ErrWalletNotFound
	}
	if err != nil {
		return Wallet{}, classifyGormError(err)
	}
	if res.RowsAffected == 0 {
		return Wallet{}, ErrBalanceConflict
	}
	return walletFromRow(row), nil
}

type gormTransactions struct{ db *gorm.DB }

func (r gormTransactions) Append(ctx context.Context, t Transaction) (Transaction, error) {
	row := transactionToRow(t)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Transaction{}, ErrDuplicateTransaction
		}
		return Transaction{}, classifyGormError(err)
	}
	return transactionFromRow(row), nil
}

func (r gormTransactions) ListByParticipant(ctx context.Context, userID string) ([]Transaction, error) {
	var rows []transactionRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? OR destination_user_id = ?", userID, userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", classifyGormError(err))
	}
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, transactionFromRow(row))
	}
	return out, nil
}

// classifyGormError applies the pgx SQLSTATE mapping to errors the gorm
// postgres driver passes through untranslated.
func classifyGormError(err error) error {
	return classifyPgError(err)
}

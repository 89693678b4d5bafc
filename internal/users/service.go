package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/logging"
)

// Service creates users together with their wallet.
type Service struct {
	store             ledger.Store
	engine            *ledger.Engine
	maxInitialBalance int64
	now               func() time.Time
	newID             func() string
	logger            *slog.Logger
}

// NewService builds a user service. maxInitialBalance <= 0 disables the ceiling.
func NewService(store ledger.Store, engine *ledger.Engine, maxInitialBalance int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:             store,
		engine:            engine,
		maxInitialBalance: maxInitialBalance,
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
		logger:            logger,
	}
}

// Created is the outcome of Create.
type Created struct {
	User   ledger.User
	Wallet ledger.Wallet
}

// Create stores a user and opens its wallet with initialBalance in one atomic
// scope; if the wallet cannot be created the user is not kept either.
func (s *Service) Create(ctx context.Context, name string, initialBalance int64) (Created, error) {
	name = strings.TrimSpace(name)
	if err := ledger.ValidateNewUser(name, initialBalance, s.maxInitialBalance); err != nil {
		return Created{}, err
	}

	var out Created
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Stores) error {
		user, err := tx.Users().Create(ctx, ledger.User{
			ID:        s.newID(),
			Name:      name,
			CreatedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ledger.ErrUserCreationFailed, err)
		}
		wallet, err := s.engine.CreateWalletForUser(ctx, user.ID, initialBalance)
		if err != nil {
			return err
		}
		out = Created{User: user, Wallet: wallet}
		return nil
	})
	if err = ledger.AsCreationFailure(err); err != nil {
		s.logger.Error("users.create failed", slog.String("name", name), slog.Any("error", err))
		return Created{}, err
	}

	s.logger.Info("users.create completed",
		slog.String("user_id", out.User.ID),
		slog.String("wallet_id", out.Wallet.ID),
		slog.Int64("initial_balance", initialBalance),
	)
	return out, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (ledger.User, error) {
	if err := ledger.ValidateUserID(id); err != nil {
		return ledger.User{}, err
	}
	return s.store.Users().Get(ctx, id)
}

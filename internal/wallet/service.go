package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/logging"
	"github.com/congo-pay/wallet-ledger/internal/notification"
)

const sideEffectTimeout = 2 * time.Second

// Service fronts the ledger engine for the HTTP layer. It keeps the wallet
// snapshot cache coherent and notifies transfer parties. Cache and notifier
// are optional.
type Service struct {
	engine   *ledger.Engine
	cache    SnapshotCache
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a wallet service.
func NewService(engine *ledger.Engine, cache SnapshotCache, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{engine: engine, cache: cache, notifier: notifier, logger: logger}
}

// Info returns the wallet of userID, served from the cache when possible.
// A miss is filled only if no mutation invalidated the user meanwhile.
func (s *Service) Info(ctx context.Context, userID string) (ledger.Wallet, error) {
	if err := ledger.ValidateUserID(userID); err != nil {
		return ledger.Wallet{}, err
	}
	var (
		generation int64
		fill       bool
	)
	if s.cache != nil {
		lookup, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.logger.Warn("wallet cache read failed", slog.String("user_id", userID), slog.Any("error", err))
		case lookup.Hit:
			return lookup.Wallet, nil
		default:
			generation, fill = lookup.Generation, true
		}
	}

	w, err := s.engine.GetWalletInfo(ctx, userID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if fill {
		if err := s.cache.Set(ctx, w, generation); err != nil {
			s.logger.Warn("wallet cache write failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return w, nil
}

// Deposit credits the wallet of userID.
func (s *Service) Deposit(ctx context.Context, userID string, amount int64) (ledger.Wallet, error) {
	w, err := s.engine.Deposit(ctx, userID, amount)
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.invalidate(ctx, userID)
	return w, nil
}

// Withdraw debits the wallet of userID.
func (s *Service) Withdraw(ctx context.Context, userID string, amount int64) (ledger.Wallet, error) {
	w, err := s.engine.Withdraw(ctx, userID, amount)
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.invalidate(ctx, userID)
	return w, nil
}

// Transfer moves amount from one user to another and notifies both parties.
// Notification failures are logged and never undo the transfer.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID string, amount int64) (ledger.TransferResult, error) {
	res, err := s.engine.Transfer(ctx, fromUserID, toUserID, amount)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	s.invalidate(ctx, fromUserID, toUserID)
	s.notifyTransfer(ctx, res)
	return res, nil
}

// History lists the transactions involving userID, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	return s.engine.GetTransactionHistory(ctx, userID)
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.Warn("wallet cache invalidation failed", slog.Any("user_ids", userIDs), slog.Any("error", err))
	}
}

func (s *Service) notifyTransfer(ctx context.Context, res ledger.TransferResult) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	messages := []notification.Message{
		{
			Kind:          notification.KindTransferReceived,
			UserID:        res.ToUserID,
			TransactionID: res.TransactionID,
			Amount:        res.Amount,
			Counterparty:  res.FromUserID,
			Body:          fmt.Sprintf("You received %d from %s", res.Amount, res.FromUserID),
			SentAt:        res.CompletedAt,
		},
		{
			Kind:          notification.KindTransferSent,
			UserID:        res.FromUserID,
			TransactionID: res.TransactionID,
			Amount:        res.Amount,
			Counterparty:  res.ToUserID,
			Body:          fmt.Sprintf("You sent %d to %s", res.Amount, res.ToUserID),
			SentAt:        res.CompletedAt,
		},
	}
	for _, m := range messages {
		if err := s.notifier.Send(ctx, m); err != nil {
			s.logger.Warn("transfer notification failed",
				slog.String("transaction_id", res.TransactionID),
				slog.String("kind", m.Kind),
				slog.Any("error", err),
			)
		}
	}
}

package ledger

import (
	"errors"
	"fmt"
)

// Validation failures. These are returned before any storage access.
var (
	ErrInvalidUserID     = errors.New("user id must not be blank")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrSameUserTransfer  = errors.New("cannot transfer to the same user")
	ErrInvalidName       = errors.New("name must not be blank")

	// ErrInitialBalanceOutOfRange is returned by ValidateNewUser when the
	// requested opening balance is negative or above the configured ceiling.
	ErrInitialBalanceOutOfRange = errors.New("initial balance out of range")
)

// Lookup failures.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrUserNotFound   = errors.New("user not found")

	ErrSourceWalletNotFound      = fmt.Errorf("source %w", ErrWalletNotFound)
	ErrDestinationWalletNotFound = fmt.Errorf("destination %w", ErrWalletNotFound)
)

// ErrInsufficientBalance occurs when a debit would take a wallet below zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Infrastructure failures surfaced by the engine. The underlying storage
// error is wrapped alongside them.
var (
	ErrWalletUpdateFailed        = errors.New("wallet update failed")
	ErrTransactionCreationFailed = errors.New("transaction creation failed")
	ErrUserCreationFailed        = errors.New("user creation failed")
	ErrWalletCreationFailed      = errors.New("wallet creation failed")
)

// Store-level conditions reported by adapters.
var (
	// ErrBalanceConflict signals a lost compare-and-set race or a database
	// serialization failure. The engine retries the whole scope on it.
	ErrBalanceConflict = errors.New("wallet balance changed concurrently")

	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrDuplicateWallet      = errors.New("wallet already exists for user")
	ErrDuplicateUser        = errors.New("user already exists")
)

// AsCreationFailure reports a duplicate key found when a scope commits as the
// creation failure of the record it belongs to. Other errors pass through.
func AsCreationFailure(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateUser) && !errors.Is(err, ErrUserCreationFailed):
		return wrapFailure(ErrUserCreationFailed, err)
	case errors.Is(err, ErrDuplicateWallet) && !errors.Is(err, ErrWalletCreationFailed):
		return wrapFailure(ErrWalletCreationFailed, err)
	case errors.Is(err, ErrDuplicateTransaction) && !errors.Is(err, ErrTransactionCreationFailed):
		return wrapFailure(ErrTransactionCreationFailed, err)
	}
	return err
}

// ErrBalanceOverflow is returned instead of letting a credit wrap around int64.
var ErrBalanceOverflow = errors.New("balance overflow")

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrSameUserTransfer) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInitialBalanceOutOfRange)
}

// IsNotFound reports whether err is a missing wallet or user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound) || errors.Is(err, ErrUserNotFound)
}

func wrapFailure(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

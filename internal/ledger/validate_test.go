package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransfer(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		amount   int64
		want     error
	}{
		{"ok", "a", "b", 1, nil},
		{"blank sender", "", "b", 1, ErrInvalidUserID},
		{"blank receiver", "a", "\t", 1, ErrInvalidUserID},
		{"zero amount", "a", "b", 0, ErrNonPositiveAmount},
		{"negative amount", "a", "b", -3, ErrNonPositiveAmount},
		{"same user", "a", "a", 10, ErrSameUserTransfer},
		{"blank beats same user", "", "", 10, ErrInvalidUserID},
		{"amount beats same user", "a", "a", 0, ErrNonPositiveAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransfer(tt.from, tt.to, tt.amount)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateNewUser(t *testing.T) {
	assert.NoError(t, ValidateNewUser("Ann", 0, 1000))
	assert.NoError(t, ValidateNewUser("Ann", 1000, 1000))
	assert.NoError(t, ValidateNewUser("Ann", 1<<40, 0))
	assert.ErrorIs(t, ValidateNewUser(" ", 10, 1000), ErrInvalidName)
	assert.ErrorIs(t, ValidateNewUser("Ann", -1, 1000), ErrInitialBalanceOutOfRange)
	assert.ErrorIs(t, ValidateNewUser("Ann", 1001, 1000), ErrInitialBalanceOutOfRange)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsValidation(ErrSameUserTransfer))
	assert.False(t, IsValidation(ErrInsufficientBalance))
	assert.True(t, IsNotFound(ErrDestinationWalletNotFound))
	assert.True(t, IsNotFound(ErrUserNotFound))
	assert.False(t, IsNotFound(ErrWalletUpdateFailed))

	wrapped := wrapFailure(ErrWalletUpdateFailed, ErrBalanceConflict)
	assert.True(t, errors.Is(wrapped, ErrWalletUpdateFailed))
	assert.True(t, errors.Is(wrapped, ErrBalanceConflict))
}

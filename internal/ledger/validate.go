package ledger

import "strings"

// ValidateUserID rejects blank identifiers.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	return nil
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}

// ValidateBalanceChange guards Deposit and Withdraw.
func ValidateBalanceChange(userID string, amount int64) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	return ValidateAmount(amount)
}

// ValidateTransfer guards Transfer. The same-user check runs last so blank
// identifiers are reported as such.
func ValidateTransfer(fromUserID, toUserID string, amount int64) error {
	if err := ValidateUserID(fromUserID); err != nil {
		return err
	}
	if err := ValidateUserID(toUserID); err != nil {
		return err
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if fromUserID == toUserID {
		return ErrSameUserTransfer
	}
	return nil
}

// ValidateNewUser checks a create-user request. maxInitialBalance <= 0 means
// no ceiling.
func ValidateNewUser(name string, initialBalance, maxInitialBalance int64) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if initialBalance < 0 || (maxInitialBalance > 0 && initialBalance > maxInitialBalance) {
		return ErrInitialBalanceOutOfRange
	}
	return nil
}

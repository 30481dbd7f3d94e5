package rewards

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient_balance")
	ErrBelowMinimumWithdrawal = errors.New("below_minimum_withdrawal")
	ErrMissingRedeemCode      = errors.New("missing_redeem_code")
	ErrStoreUnavailable       = errors.New("store_unavailable")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrAlreadyProcessed       = errors.New("already_processed")
	ErrWithdrawalNotFound     = errors.New("withdrawal_not_found")
	ErrInvalidDecision        = errors.New("invalid_decision")
	ErrInvalidContactEmail    = errors.New("invalid_contact_email")
	ErrInvalidStatusFilter    = errors.New("invalid_status_filter")
	ErrDuplicateSignal        = errors.New("duplicate_signal")
)

// errNoAccount aborts a transaction for an unknown account; callers turn
// it into a no-op result.
var errNoAccount = errors.New("account not found")

var domainErrors = []error{
	ErrInsufficientBalance,
	ErrBelowMinimumWithdrawal,
	ErrMissingRedeemCode,
	ErrUnauthenticated,
	ErrAlreadyProcessed,
	ErrWithdrawalNotFound,
	ErrInvalidDecision,
	ErrInvalidContactEmail,
	ErrInvalidStatusFilter,
	ErrDuplicateSignal,
	errNoAccount,
}

// storeErr passes domain errors through and wraps everything else as
// ErrStoreUnavailable, keeping the cause for logs.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if isDomainErr(err) {
		return err
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func isDomainErr(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

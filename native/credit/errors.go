package credit

import (
	"errors"
	"fmt"
)

// Authorization failures. Always fatal to the calling operation; the engine
// never retries on behalf of the caller.
var (
	ErrCallerNotOwner         = errors.New("credit engine: caller is not the account owner")
	ErrCallerNotConfigurator  = errors.New("credit engine: caller lacks the configurator role")
	ErrCallerNotPausableAdmin = errors.New("credit engine: caller lacks the pausable admin role")
	ErrCallerNotController    = errors.New("credit engine: caller lacks the controller role")
	ErrNotApprovedBot         = errors.New("credit engine: bot is forbidden or has no permissions")
)

// Validation failures. Rejected before any state mutation; recoverable by
// resubmitting corrected input.
var (
	ErrIncorrectBitMask              = errors.New("credit engine: mask does not hold exactly one bit")
	ErrIncorrectTokenMask            = errors.New("credit engine: hint mask does not match an enabled token")
	ErrIncorrectLiquidationThreshold = errors.New("credit engine: liquidation threshold out of range")
	ErrIncorrectParameter            = errors.New("credit engine: parameter out of range")
	ErrTokenNotAllowed               = errors.New("credit engine: token is not a registered collateral")
	ErrTokenAlreadyAdded             = errors.New("credit engine: token already registered")
	ErrTooManyTokens                 = errors.New("credit engine: collateral token capacity exhausted")
	ErrPriceFeedDoesNotExist         = errors.New("credit engine: no price feed configured for token")
	ErrBorrowAmountOutOfLimits       = errors.New("credit engine: debt outside configured bounds")
	ErrBorrowLimitExceeded           = errors.New("credit engine: per-block borrow cap exceeded")
	ErrBorrowingForbidden            = errors.New("credit engine: borrowing is forbidden")
	ErrForbiddenTokensEnabled        = errors.New("credit engine: account holds forbidden collateral")
	ErrUnknownMethod                 = errors.New("credit engine: unknown multicall action")
	ErrTargetContractNotAllowed      = errors.New("credit engine: target is not a registered adapter")
	ErrMinHealthFactorTooLow         = errors.New("credit engine: minimum health factor below scale")
	ErrExpectedBalancesAlreadySet    = errors.New("credit engine: expected balances already stored")
	ErrExpectedBalancesNotSet        = errors.New("credit engine: expected balances were never stored")
	ErrDebtUpdatedTwiceInOneBlock    = errors.New("credit engine: debt direction already changed this block")
	ErrAccountNotFound               = errors.New("credit engine: credit account not found")
	ErrAccountInUse                  = errors.New("credit engine: another multicall is in flight")
	ErrCloseAccountInSameBlock       = errors.New("credit engine: account cannot close in its opening block")
	ErrNotLiquidatable               = errors.New("credit engine: account is solvent")
	ErrNotExpired                    = errors.New("credit engine: facade expiration not reached")
)

// Solvency failures. Abort the whole multicall; no partial application.
var (
	ErrNotEnoughCollateral       = errors.New("credit engine: collateral does not cover debt")
	ErrBalanceLessThanExpected   = errors.New("credit engine: received less than the expected balance delta")
	ErrOnlyEmergencyLiquidators  = errors.New("credit engine: loss ceiling reached, emergency liquidators only")
	ErrInsufficientAccountFunds  = errors.New("credit engine: account balance below requested amount")
	ErrEngineNotConfigured       = errors.New("credit engine: state or collaborators not configured")
)

// NoPermissionError reports which permission bit the caller was missing, so
// bots can branch on the exact cause.
type NoPermissionError struct {
	Permission Permission
}

func (e NoPermissionError) Error() string {
	return fmt.Sprintf("credit engine: caller lacks permission %s", e.Permission)
}

// Is makes errors.Is(err, NoPermissionError{}) match any missing permission.
func (e NoPermissionError) Is(target error) bool {
	_, ok := target.(NoPermissionError)
	return ok
}

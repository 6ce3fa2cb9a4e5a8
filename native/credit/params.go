package credit

import "math/big"

// Fees groups the protocol-wide fee and discount parameters, all in basis
// points. Discounts are stored directly (10000 - premium).
type Fees struct {
	InterestBps                   uint16
	LiquidationBps                uint16
	LiquidationExpiredBps         uint16
	LiquidationDiscountBps        uint16
	LiquidationDiscountExpiredBps uint16
}

// Validate rejects fee configurations that could mint value out of thin air.
func (f Fees) Validate() error {
	if f.InterestBps > 10_000 ||
		f.LiquidationBps > 10_000 || f.LiquidationExpiredBps > 10_000 ||
		f.LiquidationDiscountBps > 10_000 || f.LiquidationDiscountExpiredBps > 10_000 {
		return ErrIncorrectParameter
	}
	// The fee taken from total value must not exceed the premium granted by
	// the discount, per closure kind.
	if f.LiquidationBps > 10_000-f.LiquidationDiscountBps {
		return ErrIncorrectParameter
	}
	if f.LiquidationExpiredBps > 10_000-f.LiquidationDiscountExpiredBps {
		return ErrIncorrectParameter
	}
	return nil
}

// discountFor selects the discount/fee pair by closure kind. CLOSE takes no
// discount; selection is strictly kind-based.
func (f Fees) discountFor(kind ClosureKind) (discountBps, feeBps uint64) {
	switch kind {
	case ClosureLiquidateExpired:
		return uint64(f.LiquidationDiscountExpiredBps), uint64(f.LiquidationExpiredBps)
	default:
		return uint64(f.LiquidationDiscountBps), uint64(f.LiquidationBps)
	}
}

// Limits groups governance-controlled debt bounds.
type Limits struct {
	// MinDebt and MaxDebt bound any single account's principal. A principal
	// is either zero (closed) or within [MinDebt, MaxDebt].
	MinDebt *big.Int
	MaxDebt *big.Int
	// MaxDebtPerBlockMultiplier caps total borrowing within one block at
	// multiplier × MaxDebt.
	MaxDebtPerBlockMultiplier uint8
	// MaxCumulativeLoss is the write-down ceiling; beyond it only emergency
	// liquidators may settle accounts.
	MaxCumulativeLoss *big.Int
}

// Clone returns a deep copy of the limits.
func (l Limits) Clone() Limits {
	clone := Limits{MaxDebtPerBlockMultiplier: l.MaxDebtPerBlockMultiplier}
	if l.MinDebt != nil {
		clone.MinDebt = new(big.Int).Set(l.MinDebt)
	}
	if l.MaxDebt != nil {
		clone.MaxDebt = new(big.Int).Set(l.MaxDebt)
	}
	if l.MaxCumulativeLoss != nil {
		clone.MaxCumulativeLoss = new(big.Int).Set(l.MaxCumulativeLoss)
	}
	return clone
}

// EnsureDefaults populates nil bounds so comparisons are safe.
func (l *Limits) EnsureDefaults() {
	if l.MinDebt == nil {
		l.MinDebt = big.NewInt(0)
	}
	if l.MaxDebt == nil {
		l.MaxDebt = big.NewInt(0)
	}
	if l.MaxCumulativeLoss == nil {
		l.MaxCumulativeLoss = big.NewInt(0)
	}
	if l.MaxDebtPerBlockMultiplier == 0 {
		l.MaxDebtPerBlockMultiplier = 1
	}
}

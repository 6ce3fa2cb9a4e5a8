package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// maxEnabledTokens bounds the full-check walk so gas-style cost stays flat.
const maxEnabledTokens = 12

// fullCollateralCheck proves the account solvent at the end of a multicall.
// The walk visits caller-supplied hint bits first, then the remaining enabled
// bits in ascending order, and stops as soon as accumulated weighted value
// covers the target. Every hint must name a bit enabled on the account.
// Tokens found with a zero balance are disabled on the spot; the underlying
// bit never is.
func (e *Engine) fullCollateralCheck(st engineState, addr common.Address, acc *CreditAccount, hints []uint, minHealthFactorBps uint64) error {
	if minHealthFactorBps < 10000 {
		return ErrMinHealthFactorTooLow
	}
	for _, bit := range hints {
		if !acc.EnabledTokens.Contains(bit) {
			return ErrIncorrectTokenMask
		}
	}
	if acc.DebtPrincipal.Sign() == 0 {
		return nil
	}
	interest, fees, err := e.accruedInterestAndFees(st, addr, acc)
	if err != nil {
		return err
	}
	target := new(big.Int).Add(acc.DebtPrincipal, interest)
	target.Add(target, fees)
	target.Mul(target, new(big.Int).SetUint64(minHealthFactorBps))
	target.Quo(target, basisPoints)

	twv := big.NewInt(0)
	visited := make(map[uint]bool, len(hints))

	visit := func(bit uint) (done bool, err error) {
		if visited[bit] || !acc.EnabledTokens.Contains(bit) {
			return false, nil
		}
		visited[bit] = true
		data, ok := e.tokenByBit[bit]
		if !ok {
			return false, ErrTokenNotAllowed
		}
		_, weighted, zero, err := e.tokenValue(st, addr, data, e.timestamp)
		if err != nil {
			return false, err
		}
		if zero {
			if bit != 0 {
				acc.EnabledTokens = acc.EnabledTokens.Disable(bit)
			}
			return false, nil
		}
		twv.Add(twv, weighted)
		return twv.Cmp(target) >= 0, nil
	}

	for _, bit := range hints {
		done, err := visit(bit)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	var walkErr error
	covered := false
	acc.EnabledTokens.ForEach(func(bit uint) bool {
		done, err := visit(bit)
		if err != nil {
			walkErr = err
			return false
		}
		if done {
			covered = true
			return false
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	if !covered {
		return ErrNotEnoughCollateral
	}
	return nil
}

// enabledTokenCount counts collateral bits above the underlying.
func enabledTokenCount(mask TokenMask) int {
	count := 0
	mask.ForEach(func(bit uint) bool {
		if bit != 0 {
			count++
		}
		return true
	})
	return count
}

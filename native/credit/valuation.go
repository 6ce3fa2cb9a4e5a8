package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// liquidationThreshold evaluates a token's LT at the given timestamp. While a
// ramp is active the threshold moves linearly from the initial to the final
// value; outside the window it clamps to the endpoints.
func liquidationThreshold(data *CollateralTokenData, now uint64) uint64 {
	if data == nil {
		return 0
	}
	if data.RampDuration == 0 || now >= data.RampStart+uint64(data.RampDuration) {
		return uint64(data.LTFinalBps)
	}
	if now < data.RampStart {
		return uint64(data.LTInitialBps)
	}
	elapsed := new(big.Int).SetUint64(now - data.RampStart)
	span := new(big.Int).SetUint64(uint64(data.RampDuration))
	from := new(big.Int).SetUint64(uint64(data.LTInitialBps))
	to := new(big.Int).SetUint64(uint64(data.LTFinalBps))
	step := new(big.Int).Sub(to, from)
	step.Mul(step, elapsed)
	step.Quo(step, span)
	return new(big.Int).Add(from, step).Uint64()
}

// LiquidationThreshold returns a registered token's current LT in basis
// points, evaluated against the engine's block timestamp.
func (e *Engine) LiquidationThreshold(token common.Address) (uint64, error) {
	bit, err := e.TokenBit(token)
	if err != nil {
		return 0, err
	}
	return liquidationThreshold(e.tokenByBit[bit], e.timestamp), nil
}

// tokenValue converts one enabled token's balance into underlying units and
// its LT-weighted contribution. Quoted tokens count at most their quota.
func (e *Engine) tokenValue(st engineState, addr common.Address, data *CollateralTokenData, now uint64) (value, weighted *big.Int, zero bool, err error) {
	balance, err := st.GetBalance(data.Token, addr)
	if err != nil {
		return nil, nil, false, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), true, nil
	}
	value, err = e.oracle.Convert(balance, data.Token)
	if err != nil {
		return nil, nil, false, err
	}
	capped := value
	if e.quotas != nil && e.quotas.Quoted(data.Token) {
		quota, qerr := e.quotas.QuotaFor(st, addr, data.Token)
		if qerr != nil {
			return nil, nil, false, qerr
		}
		if quota != nil && quota.Cmp(value) < 0 {
			capped = quota
		}
	}
	weighted = bpsMul(capped, liquidationThreshold(data, now))
	return value, weighted, false, nil
}

// calcCollateral walks every enabled token and produces the account's full
// debt and collateral picture. No short-circuiting: this is the view used by
// settlement and queries, where exact totals matter.
func (e *Engine) calcCollateral(st engineState, addr common.Address, acc *CreditAccount) (*CollateralDebtData, error) {
	interest, fees, err := e.accruedInterestAndFees(st, addr, acc)
	if err != nil {
		return nil, err
	}
	cdd := &CollateralDebtData{
		Principal:       cloneBig(acc.DebtPrincipal),
		AccruedInterest: interest,
		AccruedFees:     fees,
		TotalValue:      big.NewInt(0),
		TWV:             big.NewInt(0),
		EnabledTokens:   acc.EnabledTokens,
	}
	var walkErr error
	acc.EnabledTokens.ForEach(func(bit uint) bool {
		data, ok := e.tokenByBit[bit]
		if !ok {
			walkErr = ErrTokenNotAllowed
			return false
		}
		value, weighted, _, err := e.tokenValue(st, addr, data, e.timestamp)
		if err != nil {
			walkErr = err
			return false
		}
		cdd.TotalValue.Add(cdd.TotalValue, value)
		cdd.TWV.Add(cdd.TWV, weighted)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return cdd, nil
}

// CalcDebtAndCollateral is the query-surface view of an account's health.
func (e *Engine) CalcDebtAndCollateral(addr common.Address) (*CollateralDebtData, error) {
	if e == nil || e.state == nil || e.oracle == nil || e.pool == nil {
		return nil, ErrEngineNotConfigured
	}
	acc, err := e.GetCreditAccount(addr)
	if err != nil {
		return nil, err
	}
	return e.calcCollateral(e.state, addr, acc)
}

// isLiquidatable reports whether weighted collateral no longer covers the
// debt including fees.
func isLiquidatable(cdd *CollateralDebtData) bool {
	total := new(big.Int).Add(cdd.DebtWithInterest(), cdd.AccruedFees)
	return cdd.TWV.Cmp(total) < 0
}

// IsLiquidatable reports whether the account is below water right now.
func (e *Engine) IsLiquidatable(addr common.Address) (bool, error) {
	cdd, err := e.CalcDebtAndCollateral(addr)
	if err != nil {
		return false, err
	}
	return isLiquidatable(cdd), nil
}

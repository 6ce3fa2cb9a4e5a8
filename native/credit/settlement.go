package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditvault/core/events"
	nativecommon "creditvault/native/common"
)

// calcAmountToPool computes the pool's share of a closure. Voluntary closes
// repay everything; liquidations repay debt at the kind's discount plus the
// liquidation fee on total collateral value.
func (e *Engine) calcAmountToPool(kind ClosureKind, cdd *CollateralDebtData) *big.Int {
	debtWithInterest := cdd.DebtWithInterest()
	if kind == ClosureClose {
		return new(big.Int).Add(debtWithInterest, cdd.AccruedFees)
	}
	discountBps, feeBps := e.fees.discountFor(kind)
	amount := bpsMul(debtWithInterest, discountBps)
	return amount.Add(amount, bpsMul(cdd.TotalValue, feeBps))
}

// CloseCreditAccount settles and destroys a credit account. For CLOSE the
// owner repays in full; for LIQUIDATE and LIQUIDATE_EXPIRED anyone may settle
// an eligible account. A shortfall never reverts: it is pulled from the payer
// as far as their balance allows and the rest is written down as pool loss,
// pausing the module.
func (e *Engine) CloseCreditAccount(caller, account common.Address, kind ClosureKind, payer, to common.Address, skipMask TokenMask, convertToNative bool) (remaining, loss *big.Int, err error) {
	if e == nil || e.state == nil || e.oracle == nil || e.pool == nil || e.factory == nil {
		return nil, nil, ErrEngineNotConfigured
	}
	if e.active != sentinelAccount {
		return nil, nil, ErrAccountInUse
	}
	e.active = account
	defer func() { e.active = sentinelAccount }()

	// Keeper books roll back with the journal when settlement aborts.
	snap := e.quotas.Snapshot()
	defer func() {
		if err != nil {
			e.quotas.Restore(snap)
		}
	}()

	acc, err := e.GetCreditAccount(account)
	if err != nil {
		return nil, nil, err
	}

	paused := e.pauses.IsPaused(moduleName)
	switch kind {
	case ClosureClose:
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return nil, nil, err
		}
		if acc.Owner != caller {
			return nil, nil, ErrCallerNotOwner
		}
		if acc.SinceBlock == e.blockNumber {
			return nil, nil, ErrCloseAccountInSameBlock
		}
	case ClosureLiquidate, ClosureLiquidateExpired:
		if paused && !e.emergencyLiquidators[caller] {
			return nil, nil, ErrOnlyEmergencyLiquidators
		}
	default:
		return nil, nil, ErrIncorrectParameter
	}

	journal := newStateJournal(e.state)
	working := acc.Clone()
	if e.quotas != nil {
		if err := e.quotas.Refresh(journal, account, working, e.timestamp); err != nil {
			return nil, nil, err
		}
	}
	cdd, err := e.calcCollateral(journal, account, working)
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case ClosureLiquidate:
		if !isLiquidatable(cdd) {
			return nil, nil, ErrNotLiquidatable
		}
	case ClosureLiquidateExpired:
		if e.expirationDate == 0 || e.timestamp < e.expirationDate {
			return nil, nil, ErrNotExpired
		}
	}

	underlying := e.Underlying()
	amountToPool := e.calcAmountToPool(kind, cdd)
	balance, err := journal.GetBalance(underlying, account)
	if err != nil {
		return nil, nil, err
	}

	paid := bigMin(balance, amountToPool)
	if err := journal.SetBalance(underlying, account, new(big.Int).Sub(balance, paid)); err != nil {
		return nil, nil, err
	}
	loss = big.NewInt(0)
	if paid.Cmp(amountToPool) < 0 {
		shortfall := new(big.Int).Sub(amountToPool, paid)
		payerBal, err := journal.GetBalance(underlying, payer)
		if err != nil {
			return nil, nil, err
		}
		pulled := bigMin(payerBal, shortfall)
		if pulled.Sign() > 0 {
			if err := journal.SetBalance(underlying, payer, new(big.Int).Sub(payerBal, pulled)); err != nil {
				return nil, nil, err
			}
			paid = new(big.Int).Add(paid, pulled)
		}
		loss = new(big.Int).Sub(amountToPool, paid)
	}

	debtWithInterest := cdd.DebtWithInterest()
	profit := big.NewInt(0)
	if paid.Cmp(debtWithInterest) > 0 {
		profit = new(big.Int).Sub(paid, debtWithInterest)
	}

	// Surplus underlying goes to the recipient, less one retained unit so the
	// recycled handle keeps a warm non-zero slot.
	remaining = big.NewInt(0)
	surplus, err := journal.GetBalance(underlying, account)
	if err != nil {
		return nil, nil, err
	}
	if surplus.Cmp(oneUnit) > 0 {
		remaining = new(big.Int).Sub(surplus, oneUnit)
		if err := transfer(journal, underlying, account, to, remaining); err != nil {
			return nil, nil, err
		}
	}

	if err := e.sweepCollateral(journal, account, working, to, skipMask, convertToNative); err != nil {
		return nil, nil, err
	}

	if e.quotas != nil {
		if err := e.quotas.ZeroQuotas(journal, account, loss.Sign() > 0); err != nil {
			return nil, nil, err
		}
	}
	if err := journal.DeleteCreditAccount(account); err != nil {
		return nil, nil, err
	}
	// The pool book moves only once every journaled step has succeeded, so an
	// aborted settlement leaves it exactly as it was.
	if err := e.pool.Repay(cdd.Principal, profit, loss); err != nil {
		return nil, nil, err
	}
	if err := journal.Commit(); err != nil {
		return nil, nil, err
	}

	delete(e.lastDebtAction, account)
	delete(e.bots, account)
	e.factory.Close(account)

	if loss.Sign() > 0 {
		e.cumulativeLoss = new(big.Int).Add(e.cumulativeLoss, loss)
		e.borrowingForbidden = true
		e.pauses.Pause(moduleName)
		e.emitter.Emit(events.CreditLossAbsorbed{
			Account:    account,
			Loss:       cloneBig(loss),
			Cumulative: cloneBig(e.cumulativeLoss),
		})
	}
	e.emitter.Emit(events.CreditAccountClosed{
		Account:        account,
		Kind:           kind.String(),
		RemainingFunds: cloneBig(remaining),
		Loss:           cloneBig(loss),
	})
	return remaining, loss, nil
}

// sweepCollateral pays out every remaining enabled collateral token to the
// recipient, honoring the skip mask. The wrapped native token unwraps through
// the gateway when requested.
func (e *Engine) sweepCollateral(st engineState, account common.Address, acc *CreditAccount, to common.Address, skipMask TokenMask, convertToNative bool) error {
	var sweepErr error
	acc.EnabledTokens.ForEach(func(bit uint) bool {
		if bit == 0 || skipMask.Contains(bit) {
			return true
		}
		data, ok := e.tokenByBit[bit]
		if !ok {
			sweepErr = ErrTokenNotAllowed
			return false
		}
		balance, err := st.GetBalance(data.Token, account)
		if err != nil {
			sweepErr = err
			return false
		}
		if balance.Sign() == 0 {
			return true
		}
		if convertToNative && e.gateway != nil && data.Token == e.wrappedNative {
			if err := st.SetBalance(data.Token, account, big.NewInt(0)); err != nil {
				sweepErr = err
				return false
			}
			if err := e.gateway.Unwrap(to, balance); err != nil {
				sweepErr = err
				return false
			}
			return true
		}
		if err := transfer(st, data.Token, account, to, balance); err != nil {
			sweepErr = err
			return false
		}
		return true
	})
	return sweepErr
}

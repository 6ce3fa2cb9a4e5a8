package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// calcAccruedInterest replays the index formula:
// principal · indexNow / indexLastUpdate − principal, floored.
func calcAccruedInterest(principal, indexLastUpdate, indexNow *big.Int) *big.Int {
	if principal == nil || principal.Sign() == 0 || indexLastUpdate == nil || indexLastUpdate.Sign() == 0 {
		return big.NewInt(0)
	}
	grown := new(big.Int).Mul(principal, indexNow)
	grown.Quo(grown, indexLastUpdate)
	out := grown.Sub(grown, principal)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// calcIndexAfterIncrease derives the synthetic snapshot index that preserves
// already-accrued interest across a principal bump:
// newIndex = indexNow·newPrincipal·oldIndex / (newPrincipal·oldIndex + oldPrincipal·(indexNow−oldIndex)).
func calcIndexAfterIncrease(indexNow, oldIndex, oldPrincipal, delta *big.Int) *big.Int {
	if oldPrincipal == nil || oldPrincipal.Sign() == 0 {
		return cloneBig(indexNow)
	}
	newPrincipal := new(big.Int).Add(oldPrincipal, delta)
	num := new(big.Int).Mul(indexNow, newPrincipal)
	num.Mul(num, oldIndex)
	den := new(big.Int).Mul(newPrincipal, oldIndex)
	drift := new(big.Int).Sub(indexNow, oldIndex)
	drift.Mul(drift, oldPrincipal)
	den.Add(den, drift)
	if den.Sign() == 0 {
		return cloneBig(indexNow)
	}
	return num.Quo(num, den)
}

// accruedInterestAndFees computes the two debt legs above principal: total
// interest (index interest plus quota interest) and the protocol fee on it.
func (e *Engine) accruedInterestAndFees(st engineState, addr common.Address, acc *CreditAccount) (interest, fees *big.Int, err error) {
	interest = calcAccruedInterest(acc.DebtPrincipal, acc.CumulativeIndexLastUpdate, e.pool.BorrowIndex())
	interest.Add(interest, acc.CumulativeQuotaInterest)
	if e.quotas != nil {
		outstanding, qerr := e.quotas.OutstandingInterest(st, addr, e.timestamp)
		if qerr != nil {
			return nil, nil, qerr
		}
		interest.Add(interest, outstanding)
	}
	fees = bpsMul(interest, uint64(e.fees.InterestBps))
	return interest, fees, nil
}

// CalcAccruedInterestAndFees reports the account's debt decomposition:
// principal, principal+interest, and principal+interest+fees.
func (e *Engine) CalcAccruedInterestAndFees(addr common.Address) (principal, withInterest, withFees *big.Int, err error) {
	if e == nil || e.state == nil || e.pool == nil {
		return nil, nil, nil, ErrEngineNotConfigured
	}
	acc, err := e.GetCreditAccount(addr)
	if err != nil {
		return nil, nil, nil, err
	}
	interest, fees, err := e.accruedInterestAndFees(e.state, addr, acc)
	if err != nil {
		return nil, nil, nil, err
	}
	principal = cloneBig(acc.DebtPrincipal)
	withInterest = new(big.Int).Add(principal, interest)
	withFees = new(big.Int).Add(withInterest, fees)
	return principal, withInterest, withFees, nil
}

// debtUpdate is the accounting outcome of one manageDebt transition, used by
// the caller to settle transfers with the pool.
type debtUpdate struct {
	newPrincipal    *big.Int
	principalRepaid *big.Int
	profit          *big.Int
}

// manageDebt applies a principal delta. Increases keep accrued interest
// intact through a synthetic index; decreases settle interest and its fee
// together (quota interest ahead of index interest), then principal.
func (e *Engine) manageDebt(st engineState, addr common.Address, acc *CreditAccount, delta *big.Int, increase bool) (*debtUpdate, error) {
	if delta == nil || delta.Sign() <= 0 {
		return nil, ErrIncorrectParameter
	}
	indexNow := e.pool.BorrowIndex()

	if increase {
		acc.CumulativeIndexLastUpdate = calcIndexAfterIncrease(indexNow, acc.CumulativeIndexLastUpdate, acc.DebtPrincipal, delta)
		acc.DebtPrincipal = new(big.Int).Add(acc.DebtPrincipal, delta)
		acc.EnabledTokens = acc.EnabledTokens.Enable(0)
		return &debtUpdate{
			newPrincipal:    cloneBig(acc.DebtPrincipal),
			principalRepaid: big.NewInt(0),
			profit:          big.NewInt(0),
		}, nil
	}

	if acc.DebtPrincipal.Sign() == 0 {
		return nil, ErrAccountNotFound
	}
	// Fold outstanding quota interest into the account so the repayment
	// waterfall works against settled numbers.
	if e.quotas != nil {
		if err := e.quotas.Refresh(st, addr, acc, e.timestamp); err != nil {
			return nil, err
		}
	}
	idxInterest := calcAccruedInterest(acc.DebtPrincipal, acc.CumulativeIndexLastUpdate, indexNow)
	quotaInterest := cloneBig(acc.CumulativeQuotaInterest)
	interest := new(big.Int).Add(idxInterest, quotaInterest)
	fees := bpsMul(interest, uint64(e.fees.InterestBps))

	covered := new(big.Int).Add(interest, fees)
	if delta.Cmp(covered) >= 0 {
		// Everything above interest+fees pays down principal; the index
		// resets since no unpaid interest remains.
		repaid := new(big.Int).Sub(delta, covered)
		if repaid.Cmp(acc.DebtPrincipal) > 0 {
			return nil, ErrBorrowAmountOutOfLimits
		}
		acc.DebtPrincipal = new(big.Int).Sub(acc.DebtPrincipal, repaid)
		acc.CumulativeIndexLastUpdate = cloneBig(indexNow)
		acc.CumulativeQuotaInterest = big.NewInt(0)
		return &debtUpdate{
			newPrincipal:    cloneBig(acc.DebtPrincipal),
			principalRepaid: repaid,
			profit:          fees,
		}, nil
	}

	// Partial repayment: principal untouched. The payment splits pro rata
	// between interest and its fee so total debt falls by the full amount
	// paid; quota interest settles ahead of index interest, and the index
	// is adjusted so the unpaid index interest is preserved exactly.
	interestPaid := new(big.Int).Mul(delta, basisPoints)
	interestPaid.Quo(interestPaid, new(big.Int).Add(basisPoints, new(big.Int).SetUint64(uint64(e.fees.InterestBps))))
	feesPaid := new(big.Int).Sub(delta, interestPaid)

	paidQuota := bigMin(interestPaid, quotaInterest)
	acc.CumulativeQuotaInterest = new(big.Int).Sub(quotaInterest, paidQuota)
	paidIdx := new(big.Int).Sub(interestPaid, paidQuota)

	unpaidIdx := new(big.Int).Sub(idxInterest, paidIdx)
	if unpaidIdx.Sign() < 0 {
		unpaidIdx = big.NewInt(0)
	}
	num := new(big.Int).Mul(indexNow, acc.DebtPrincipal)
	den := new(big.Int).Add(acc.DebtPrincipal, unpaidIdx)
	acc.CumulativeIndexLastUpdate = num.Quo(num, den)

	return &debtUpdate{
		newPrincipal:    cloneBig(acc.DebtPrincipal),
		principalRepaid: big.NewInt(0),
		profit:          feesPaid,
	}, nil
}

package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerPool is the reference Pool: linear borrow-index accrual over a flat
// yearly rate and plain liquidity book-keeping. Share accounting for
// depositors lives outside the engine.
type LedgerPool struct {
	available *big.Int
	borrowed  *big.Int

	borrowIndex *big.Int
	rateBps     uint64
	lastAccrual uint64

	totalProfit *big.Int
	totalLoss   *big.Int
}

// NewLedgerPool returns a pool seeded with liquidity, accruing at the given
// yearly rate from the given timestamp.
func NewLedgerPool(liquidity *big.Int, rateBps uint64, now uint64) *LedgerPool {
	return &LedgerPool{
		available:   cloneBig(liquidity),
		borrowed:    big.NewInt(0),
		borrowIndex: new(big.Int).Set(ray),
		rateBps:     rateBps,
		lastAccrual: now,
		totalProfit: big.NewInt(0),
		totalLoss:   big.NewInt(0),
	}
}

// Accrue extends the borrow index to the given timestamp:
// index += index·rate·Δt / year / 10000, floored.
func (p *LedgerPool) Accrue(now uint64) {
	if p == nil || now <= p.lastAccrual {
		return
	}
	if p.rateBps > 0 {
		delta := new(big.Int).SetUint64(now - p.lastAccrual)
		growth := new(big.Int).Mul(p.borrowIndex, new(big.Int).SetUint64(p.rateBps))
		growth.Mul(growth, delta)
		growth.Quo(growth, big.NewInt(secondsPerYear))
		growth.Quo(growth, basisPoints)
		p.borrowIndex = new(big.Int).Add(p.borrowIndex, growth)
	}
	p.lastAccrual = now
}

// Lend reserves liquidity for a borrower.
func (p *LedgerPool) Lend(amount *big.Int, to common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrIncorrectParameter
	}
	if p.available.Cmp(amount) < 0 {
		return ErrBorrowLimitExceeded
	}
	p.available = new(big.Int).Sub(p.available, amount)
	p.borrowed = new(big.Int).Add(p.borrowed, amount)
	return nil
}

// Repay returns principal to the book and records the fee or write-down
// outcome of the closure.
func (p *LedgerPool) Repay(principal, profit, loss *big.Int) error {
	if principal != nil && principal.Sign() > 0 {
		p.borrowed = new(big.Int).Sub(p.borrowed, principal)
		if p.borrowed.Sign() < 0 {
			p.borrowed = big.NewInt(0)
		}
		p.available = new(big.Int).Add(p.available, principal)
	}
	if profit != nil && profit.Sign() > 0 {
		p.available = new(big.Int).Add(p.available, profit)
		p.totalProfit = new(big.Int).Add(p.totalProfit, profit)
	}
	if loss != nil && loss.Sign() > 0 {
		p.available = new(big.Int).Sub(p.available, loss)
		if p.available.Sign() < 0 {
			p.available = big.NewInt(0)
		}
		p.totalLoss = new(big.Int).Add(p.totalLoss, loss)
	}
	return nil
}

// BorrowIndex returns the cumulative RAY borrow index as of the last accrual.
func (p *LedgerPool) BorrowIndex() *big.Int {
	return cloneBig(p.borrowIndex)
}

// Available returns the lendable liquidity.
func (p *LedgerPool) Available() *big.Int { return cloneBig(p.available) }

// Borrowed returns the outstanding principal across all accounts.
func (p *LedgerPool) Borrowed() *big.Int { return cloneBig(p.borrowed) }

// Deposit adds liquidity to the book.
func (p *LedgerPool) Deposit(amount *big.Int) {
	if p == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	p.available = new(big.Int).Add(p.available, amount)
}

package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeCreditAccountOpened is emitted when a credit account is drawn from
	// the factory and funded.
	TypeCreditAccountOpened = "credit.account.opened"
	// TypeCreditAccountClosed is emitted after settlement, for every closure
	// kind.
	TypeCreditAccountClosed = "credit.account.closed"
	// TypeCreditMulticallStarted marks the start boundary of a multicall.
	TypeCreditMulticallStarted = "credit.multicall.started"
	// TypeCreditMulticallFinished marks the finish boundary, after the full
	// collateral check passed.
	TypeCreditMulticallFinished = "credit.multicall.finished"
	// TypeCreditLossAbsorbed is emitted when a liquidation shortfall is
	// written down against the pool.
	TypeCreditLossAbsorbed = "credit.loss.absorbed"
)

// CreditAccountOpened captures a newly funded account.
type CreditAccountOpened struct {
	Account common.Address
	Owner   common.Address
	Debt    *big.Int
}

func (CreditAccountOpened) EventType() string { return TypeCreditAccountOpened }

// CreditAccountClosed captures the settlement outcome of a closure.
type CreditAccountClosed struct {
	Account        common.Address
	Kind           string
	RemainingFunds *big.Int
	Loss           *big.Int
}

func (CreditAccountClosed) EventType() string { return TypeCreditAccountClosed }

// CreditMulticallStarted marks the activation of the single multicall slot.
type CreditMulticallStarted struct {
	Account common.Address
	Caller  common.Address
}

func (CreditMulticallStarted) EventType() string { return TypeCreditMulticallStarted }

// CreditMulticallFinished marks a committed multicall.
type CreditMulticallFinished struct {
	Account common.Address
}

func (CreditMulticallFinished) EventType() string { return TypeCreditMulticallFinished }

// CreditLossAbsorbed reports a pool write-down and the running total.
type CreditLossAbsorbed struct {
	Account    common.Address
	Loss       *big.Int
	Cumulative *big.Int
}

func (CreditLossAbsorbed) EventType() string { return TypeCreditLossAbsorbed }

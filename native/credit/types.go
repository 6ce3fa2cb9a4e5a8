package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account flag bits.
const (
	// FlagBotPermissionsSet marks accounts that granted at least one bot a
	// permission mask, so bot lookups can skip the registry for the rest.
	FlagBotPermissionsSet uint64 = 1 << 0
)

// CreditAccount is a leveraged position: borrowed principal plus the set of
// collateral tokens counted toward its solvency. Amounts are wei-denominated
// big integers to match on-chain precision.
type CreditAccount struct {
	// Owner is the externally owned address allowed to operate the account.
	Owner common.Address `json:"owner"`
	// DebtPrincipal is the borrowed principal, exclusive of interest.
	DebtPrincipal *big.Int `json:"debtPrincipal"`
	// CumulativeIndexLastUpdate snapshots the pool borrow index (RAY) at the
	// last debt mutation. Monotonically non-decreasing, never above the
	// current pool index.
	CumulativeIndexLastUpdate *big.Int `json:"cumulativeIndexLastUpdate"`
	// CumulativeQuotaInterest is accrued, unclaimed interest from quota
	// token fees.
	CumulativeQuotaInterest *big.Int `json:"cumulativeQuotaInterest"`
	// EnabledTokens is the collateral membership mask. Bit 0 (underlying) is
	// set whenever debt is positive.
	EnabledTokens TokenMask `json:"enabledTokens"`
	// SinceBlock is the opening block; closure in the same block is refused.
	SinceBlock uint64 `json:"sinceBlock"`
	// Flags holds auxiliary bits, see Flag* constants.
	Flags uint64 `json:"flags"`
}

// Clone returns a deep copy of the account.
func (a *CreditAccount) Clone() *CreditAccount {
	if a == nil {
		return nil
	}
	clone := &CreditAccount{
		Owner:         a.Owner,
		EnabledTokens: a.EnabledTokens,
		SinceBlock:    a.SinceBlock,
		Flags:         a.Flags,
	}
	if a.DebtPrincipal != nil {
		clone.DebtPrincipal = new(big.Int).Set(a.DebtPrincipal)
	}
	if a.CumulativeIndexLastUpdate != nil {
		clone.CumulativeIndexLastUpdate = new(big.Int).Set(a.CumulativeIndexLastUpdate)
	}
	if a.CumulativeQuotaInterest != nil {
		clone.CumulativeQuotaInterest = new(big.Int).Set(a.CumulativeQuotaInterest)
	}
	return clone
}

// EnsureDefaults populates nil big.Int fields so JSON round-trips are safe.
func (a *CreditAccount) EnsureDefaults() {
	if a.DebtPrincipal == nil {
		a.DebtPrincipal = big.NewInt(0)
	}
	if a.CumulativeIndexLastUpdate == nil {
		a.CumulativeIndexLastUpdate = new(big.Int).Set(ray)
	}
	if a.CumulativeQuotaInterest == nil {
		a.CumulativeQuotaInterest = big.NewInt(0)
	}
}

// CollateralTokenData describes one registered collateral slot. The mask bit
// is assigned at registration and immutable afterwards.
type CollateralTokenData struct {
	Token common.Address
	Bit   uint
	// LTInitialBps and LTFinalBps bound the liquidation threshold ramp, in
	// basis points (≤ 10000).
	LTInitialBps uint16
	LTFinalBps   uint16
	// RampStart and RampDuration define the interpolation window in unix
	// seconds. Outside the window the threshold clamps to the endpoints.
	RampStart    uint64
	RampDuration uint32
	// Quoted marks tokens whose collateral contribution is capped by the
	// account's quota.
	Quoted bool
}

// QuotaInfo is the per-account exposure record for one quoted token.
type QuotaInfo struct {
	// Quota caps the token's collateral contribution, in underlying units.
	Quota *big.Int `json:"quota"`
	// CumulativeIndexLU snapshots the token quota index (RAY) at the last
	// quota mutation.
	CumulativeIndexLU *big.Int `json:"cumulativeIndexLU"`
}

// Clone returns a deep copy of the quota record.
func (q *QuotaInfo) Clone() *QuotaInfo {
	if q == nil {
		return nil
	}
	clone := &QuotaInfo{}
	if q.Quota != nil {
		clone.Quota = new(big.Int).Set(q.Quota)
	}
	if q.CumulativeIndexLU != nil {
		clone.CumulativeIndexLU = new(big.Int).Set(q.CumulativeIndexLU)
	}
	return clone
}

// ClosureKind selects the settlement parameters applied when an account is
// torn down.
type ClosureKind uint8

const (
	// ClosureClose is a voluntary full repayment by the owner.
	ClosureClose ClosureKind = iota
	// ClosureLiquidate settles an undercollateralized account.
	ClosureLiquidate
	// ClosureLiquidateExpired settles any account after the facade
	// expiration date.
	ClosureLiquidateExpired
)

func (k ClosureKind) String() string {
	switch k {
	case ClosureClose:
		return "close"
	case ClosureLiquidate:
		return "liquidate"
	case ClosureLiquidateExpired:
		return "liquidate_expired"
	default:
		return "unknown"
	}
}

// CollateralDebtData is the settlement snapshot of an account: debt legs and
// valuation at a single point in time.
type CollateralDebtData struct {
	Principal       *big.Int
	AccruedInterest *big.Int
	AccruedFees     *big.Int
	TotalValue      *big.Int
	TWV             *big.Int
	EnabledTokens   TokenMask
}

// DebtWithInterest returns principal plus accrued interest.
func (d *CollateralDebtData) DebtWithInterest() *big.Int {
	out := new(big.Int).Add(d.Principal, d.AccruedInterest)
	return out
}

package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditvault/core/events"
	nativecommon "creditvault/native/common"
)

const moduleName = "credit"

// sentinelAccount re-arms the single active-multicall slot. Address 1 is
// never a valid credit account.
var sentinelAccount = common.BytesToAddress([]byte{0x01})

// engineState is the persistence boundary for the credit engine. A nil
// record (not an error) means "absent".
type engineState interface {
	GetCreditAccount(addr common.Address) (*CreditAccount, error)
	PutCreditAccount(addr common.Address, acc *CreditAccount) error
	DeleteCreditAccount(addr common.Address) error
	GetBalance(token, holder common.Address) (*big.Int, error)
	SetBalance(token, holder common.Address, amount *big.Int) error
	GetQuota(account, token common.Address) (*QuotaInfo, error)
	PutQuota(account, token common.Address, info *QuotaInfo) error
	DeleteQuota(account, token common.Address) error
}

// PriceOracle converts token amounts into the underlying valuation unit.
// Conversions must be deterministic within a block.
type PriceOracle interface {
	Convert(amount *big.Int, token common.Address) (*big.Int, error)
	HasPriceFeed(token common.Address) bool
}

// Pool is the capital source and sink. Lend reserves liquidity for a
// borrower and Repay returns it with the fee or loss outcome; moving the
// underlying on the ledger is the engine's job. BorrowIndex is the cumulative
// RAY interest index debt accrues against.
type Pool interface {
	Lend(amount *big.Int, to common.Address) error
	Repay(principal, profit, loss *big.Int) error
	BorrowIndex() *big.Int
}

// AccountFactory allocates credit account handles, reusing freed ones.
type AccountFactory interface {
	Open() (common.Address, error)
	Close(handle common.Address)
}

// Adapter forwards opaque calldata to its registered target contract on
// behalf of a credit account. Adapters never hold custody.
type Adapter interface {
	TargetContract() common.Address
	Execute(account common.Address, input []byte) ([]byte, error)
}

// NativeGateway unwraps the designated wrapped-native token during sweeps.
type NativeGateway interface {
	Unwrap(to common.Address, amount *big.Int) error
}

type debtAction struct {
	block    uint64
	increase bool
}

// approvalKey addresses one spending allowance an adapter left behind.
type approvalKey struct {
	account common.Address
	spender common.Address
	token   common.Address
}

// Engine orchestrates credit accounts: opening, multicalls, the full
// collateral check, and closure settlement.
type Engine struct {
	state   engineState
	oracle  PriceOracle
	pool    Pool
	factory AccountFactory
	gateway NativeGateway
	emitter events.Emitter
	pauses  *nativecommon.Switchboard
	quotas  *QuotaKeeper

	adapters map[common.Address]Adapter

	fees   Fees
	limits Limits

	tokens     []*CollateralTokenData
	tokenByBit map[uint]*CollateralTokenData
	tokenIndex map[common.Address]uint

	wrappedNative      common.Address
	forbiddenTokens    TokenMask
	borrowingForbidden bool
	expirationDate     uint64

	botCapabilities      Permission
	bots                 map[common.Address]map[common.Address]Permission
	forbiddenBots        map[common.Address]bool
	emergencyLiquidators map[common.Address]bool

	blockNumber uint64
	timestamp   uint64

	borrowedInBlock  *big.Int
	borrowedAtHeight uint64
	lastDebtAction   map[common.Address]debtAction

	active         common.Address
	cumulativeLoss *big.Int

	approvals map[approvalKey]*big.Int
}

// NewEngine constructs an engine with the underlying token registered at the
// reserved bit 0.
func NewEngine(underlying common.Address, underlyingLTBps uint16, fees Fees, limits Limits) *Engine {
	limits.EnsureDefaults()
	e := &Engine{
		emitter:              events.NoopEmitter{},
		adapters:             make(map[common.Address]Adapter),
		fees:                 fees,
		limits:               limits,
		tokenByBit:           make(map[uint]*CollateralTokenData),
		tokenIndex:           make(map[common.Address]uint),
		botCapabilities:      AllPermissions,
		bots:                 make(map[common.Address]map[common.Address]Permission),
		forbiddenBots:        make(map[common.Address]bool),
		emergencyLiquidators: make(map[common.Address]bool),
		borrowedInBlock:      big.NewInt(0),
		lastDebtAction:       make(map[common.Address]debtAction),
		active:               sentinelAccount,
		cumulativeLoss:       big.NewInt(0),
		approvals:            make(map[approvalKey]*big.Int),
	}
	data := &CollateralTokenData{
		Token:        underlying,
		Bit:          0,
		LTInitialBps: underlyingLTBps,
		LTFinalBps:   underlyingLTBps,
	}
	e.tokens = append(e.tokens, data)
	e.tokenByBit[0] = data
	e.tokenIndex[underlying] = 0
	return e
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the price oracle used by collateral valuation.
func (e *Engine) SetOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetPool wires the lending pool.
func (e *Engine) SetPool(pool Pool) {
	if e == nil {
		return
	}
	e.pool = pool
}

// SetFactory wires the credit account factory.
func (e *Engine) SetFactory(factory AccountFactory) {
	if e == nil {
		return
	}
	e.factory = factory
}

// SetEmitter wires the event sink. A nil emitter resets to the noop sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetSwitchboard wires the pause switchboard shared with the configurator.
func (e *Engine) SetSwitchboard(s *nativecommon.Switchboard) {
	if e == nil {
		return
	}
	e.pauses = s
}

// SetQuotaKeeper wires the quota subsystem.
func (e *Engine) SetQuotaKeeper(keeper *QuotaKeeper) {
	if e == nil {
		return
	}
	e.quotas = keeper
}

// SetGateway wires the native-token unwrap gateway used during sweeps.
func (e *Engine) SetGateway(wrapped common.Address, gateway NativeGateway) {
	if e == nil {
		return
	}
	e.wrappedNative = wrapped
	e.gateway = gateway
}

// SetBlockContext records the height and timestamp all accrual and ramping
// math is evaluated against. Blocks are the only clock.
func (e *Engine) SetBlockContext(height, timestamp uint64) {
	if e == nil {
		return
	}
	e.blockNumber = height
	e.timestamp = timestamp
}

// RegisterAdapter allows a target contract to be called from multicalls. The
// adapter's registered target must match the registry entry.
func (e *Engine) RegisterAdapter(target common.Address, adapter Adapter) error {
	if e == nil || adapter == nil {
		return ErrEngineNotConfigured
	}
	if adapter.TargetContract() != target {
		return ErrIncorrectParameter
	}
	e.adapters[target] = adapter
	return nil
}

// Underlying returns the underlying token address (bit 0).
func (e *Engine) Underlying() common.Address { return e.tokens[0].Token }

// Fees returns the current fee configuration.
func (e *Engine) Fees() Fees { return e.fees }

// Limits returns a copy of the current debt bounds.
func (e *Engine) Limits() Limits { return e.limits.Clone() }

// CumulativeLoss returns the running liquidation write-down total.
func (e *Engine) CumulativeLoss() *big.Int { return cloneBig(e.cumulativeLoss) }

// TokenByBit resolves a mask bit to its collateral registration.
func (e *Engine) TokenByBit(bit uint) (*CollateralTokenData, error) {
	data, ok := e.tokenByBit[bit]
	if !ok {
		return nil, ErrTokenNotAllowed
	}
	return data, nil
}

// TokenBit resolves a token address to its mask bit.
func (e *Engine) TokenBit(token common.Address) (uint, error) {
	bit, ok := e.tokenIndex[token]
	if !ok {
		return 0, ErrTokenNotAllowed
	}
	return bit, nil
}

// CollateralTokens returns the registry in bit order.
func (e *Engine) CollateralTokens() []*CollateralTokenData {
	out := make([]*CollateralTokenData, len(e.tokens))
	copy(out, e.tokens)
	return out
}

// GetCreditAccount loads an account record, failing when absent.
func (e *Engine) GetCreditAccount(addr common.Address) (*CreditAccount, error) {
	if e == nil || e.state == nil {
		return nil, ErrEngineNotConfigured
	}
	acc, err := e.state.GetCreditAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	acc.EnsureDefaults()
	return acc, nil
}

// OpenCreditAccount draws a handle from the factory, funds it with borrowed
// principal and runs the opening action batch, which is how the borrower
// posts the collateral the account needs to clear the full collateral check.
// Debt actions are not permitted inside the opening batch; nothing lands,
// and the handle returns to the free-list, if any step fails.
func (e *Engine) OpenCreditAccount(onBehalfOf common.Address, debt *big.Int, actions []Action) (_ common.Address, err error) {
	if e == nil || e.state == nil || e.oracle == nil || e.pool == nil || e.factory == nil {
		return common.Address{}, ErrEngineNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return common.Address{}, err
	}
	if debt == nil || debt.Sign() <= 0 {
		return common.Address{}, ErrBorrowAmountOutOfLimits
	}
	if e.borrowingForbidden {
		return common.Address{}, ErrBorrowingForbidden
	}
	if debt.Cmp(e.limits.MinDebt) < 0 || (e.limits.MaxDebt.Sign() > 0 && debt.Cmp(e.limits.MaxDebt) > 0) {
		return common.Address{}, ErrBorrowAmountOutOfLimits
	}
	if e.active != sentinelAccount {
		return common.Address{}, ErrAccountInUse
	}
	if err := e.trackBlockBorrow(debt); err != nil {
		return common.Address{}, err
	}

	handle, err := e.factory.Open()
	if err != nil {
		return common.Address{}, err
	}
	e.active = handle
	defer func() { e.active = sentinelAccount }()
	defer func() {
		if err != nil {
			e.factory.Close(handle)
		}
	}()
	snap := e.quotas.Snapshot()
	defer func() {
		if err != nil {
			e.quotas.Restore(snap)
		}
	}()

	journal := newStateJournal(e.state)
	acc := &CreditAccount{
		Owner:                     onBehalfOf,
		DebtPrincipal:             new(big.Int).Set(debt),
		CumulativeIndexLastUpdate: cloneBig(e.pool.BorrowIndex()),
		CumulativeQuotaInterest:   big.NewInt(0),
		EnabledTokens:             UnderlyingTokenMask,
		SinceBlock:                e.blockNumber,
	}
	bal, err := journal.GetBalance(e.Underlying(), handle)
	if err != nil {
		return common.Address{}, err
	}
	if err = journal.SetBalance(e.Underlying(), handle, bal.Add(bal, debt)); err != nil {
		return common.Address{}, err
	}

	s := &session{
		st:                 journal,
		account:            handle,
		caller:             onBehalfOf,
		perms:              AllPermissions &^ (PermIncreaseDebt | PermDecreaseDebt),
		acc:                acc,
		minHealthFactorBps: 10000,
		lend:               cloneBig(debt),
	}
	for _, action := range actions {
		if err = e.applyAction(s, action); err != nil {
			return common.Address{}, err
		}
	}
	if err = e.sealBatch(s); err != nil {
		return common.Address{}, err
	}

	e.lastDebtAction[handle] = debtAction{block: e.blockNumber, increase: true}
	e.emitter.Emit(events.CreditAccountOpened{Account: handle, Owner: onBehalfOf, Debt: cloneBig(debt)})
	return handle, nil
}

// ApproveFromAccount records a spending allowance granted during an adapter
// call. Adapters call this from Execute; owners revoke leftovers through the
// multicall surface.
func (e *Engine) ApproveFromAccount(account, spender, token common.Address, amount *big.Int) {
	if e == nil {
		return
	}
	key := approvalKey{account: account, spender: spender, token: token}
	if amount == nil || amount.Sign() == 0 {
		delete(e.approvals, key)
		return
	}
	e.approvals[key] = cloneBig(amount)
}

// Allowance returns the outstanding allowance for a spender on an account's
// token, zero when none.
func (e *Engine) Allowance(account, spender, token common.Address) *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	if amt, ok := e.approvals[approvalKey{account: account, spender: spender, token: token}]; ok {
		return cloneBig(amt)
	}
	return big.NewInt(0)
}

// trackBlockBorrow enforces the per-block borrow cap
// (MaxDebtPerBlockMultiplier × MaxDebt across all accounts).
func (e *Engine) trackBlockBorrow(amount *big.Int) error {
	if e.borrowedAtHeight != e.blockNumber {
		e.borrowedAtHeight = e.blockNumber
		e.borrowedInBlock = big.NewInt(0)
	}
	next := new(big.Int).Add(e.borrowedInBlock, amount)
	if e.limits.MaxDebt.Sign() > 0 {
		ceiling := new(big.Int).Mul(e.limits.MaxDebt, big.NewInt(int64(e.limits.MaxDebtPerBlockMultiplier)))
		if next.Cmp(ceiling) > 0 {
			return ErrBorrowLimitExceeded
		}
	}
	e.borrowedInBlock = next
	return nil
}

// transfer moves a token balance between holders inside the ledger view.
func transfer(st engineState, token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	fromBal, err := st.GetBalance(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientAccountFunds
	}
	toBal, err := st.GetBalance(token, to)
	if err != nil {
		return err
	}
	if err := st.SetBalance(token, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return st.SetBalance(token, to, new(big.Int).Add(toBal, amount))
}

package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditvault/core/events"
	nativecommon "creditvault/native/common"
)

// Permission gates individual multicall actions for delegated callers.
type Permission uint64

const (
	PermAddCollateral Permission = 1 << iota
	PermIncreaseDebt
	PermDecreaseDebt
	PermEnableToken
	PermDisableToken
	PermUpdateQuota
	PermRevokeAllowances
	PermExternalCalls
)

// AllPermissions is what an account owner holds implicitly.
const AllPermissions = PermAddCollateral | PermIncreaseDebt | PermDecreaseDebt |
	PermEnableToken | PermDisableToken | PermUpdateQuota | PermRevokeAllowances | PermExternalCalls

// LiquidatorPermissions is the reduced set granted to the liquidation path.
const LiquidatorPermissions = PermAddCollateral | PermEnableToken | PermExternalCalls

func (p Permission) String() string {
	switch p {
	case PermAddCollateral:
		return "add collateral"
	case PermIncreaseDebt:
		return "increase debt"
	case PermDecreaseDebt:
		return "decrease debt"
	case PermEnableToken:
		return "enable token"
	case PermDisableToken:
		return "disable token"
	case PermUpdateQuota:
		return "update quota"
	case PermRevokeAllowances:
		return "revoke allowances"
	case PermExternalCalls:
		return "external calls"
	default:
		return "unknown"
	}
}

// Action is one step of a multicall. The set of implementations is closed;
// anything else fails the batch with ErrUnknownMethod.
type Action interface {
	creditAction()
}

// AddCollateral moves tokens from the caller's wallet onto the account and
// enables the token.
type AddCollateral struct {
	Token  common.Address
	Amount *big.Int
}

// IncreaseDebt borrows more principal from the pool onto the account.
type IncreaseDebt struct {
	Amount *big.Int
}

// DecreaseDebt repays underlying from the account, settling interest and its
// fee before principal.
type DecreaseDebt struct {
	Amount *big.Int
}

// EnableToken turns a registered token's collateral bit on.
type EnableToken struct {
	Token common.Address
}

// DisableToken turns a collateral bit off. Disabling the underlying is a
// no-op.
type DisableToken struct {
	Token common.Address
}

// UpdateQuota changes the account's quota for a quoted token by a signed
// amount. Enablement of quoted tokens follows the quota.
type UpdateQuota struct {
	Token  common.Address
	Change *big.Int
}

// BalanceDelta is one leg of a slippage guard: the caller expects the
// account's balance of Token to grow by at least Amount.
type BalanceDelta struct {
	Token  common.Address
	Amount *big.Int
}

// StoreExpectedBalances arms the slippage guard. Setting it twice without a
// comparison in between fails the batch.
type StoreExpectedBalances struct {
	Deltas []BalanceDelta
}

// CompareBalances checks the armed expectations and disarms the guard.
type CompareBalances struct{}

// SetFullCheckParams tunes the closing collateral check: hint ordering for
// the token walk and a minimum health factor above water.
type SetFullCheckParams struct {
	CollateralHints    []uint
	MinHealthFactorBps uint64
}

// Revocation names one allowance to zero out.
type Revocation struct {
	Spender common.Address
	Token   common.Address
}

// RevokeAdapterAllowances zeroes allowances adapters left behind.
type RevokeAdapterAllowances struct {
	Revocations []Revocation
}

// CallAdapter forwards opaque calldata to a registered adapter's target.
type CallAdapter struct {
	Target common.Address
	Input  []byte
}

func (AddCollateral) creditAction()           {}
func (IncreaseDebt) creditAction()            {}
func (DecreaseDebt) creditAction()            {}
func (EnableToken) creditAction()             {}
func (DisableToken) creditAction()            {}
func (UpdateQuota) creditAction()             {}
func (StoreExpectedBalances) creditAction()   {}
func (CompareBalances) creditAction()         {}
func (SetFullCheckParams) creditAction()      {}
func (RevokeAdapterAllowances) creditAction() {}
func (CallAdapter) creditAction()             {}

// session carries the scratch state of one multicall from entry to the
// closing collateral check.
type session struct {
	st      *stateJournal
	account common.Address
	caller  common.Address
	perms   Permission
	acc     *CreditAccount

	expected map[common.Address]*big.Int

	hints              []uint
	minHealthFactorBps uint64

	debtIncreased   bool
	forbiddenBefore TokenMask

	// Pool effects are buffered here and settle in sealBatch, never earlier.
	// The debt-direction guard means at most one of the two is set.
	lend  *big.Int
	repay *debtUpdate
}

func (s *session) require(p Permission) error {
	if s.perms&p == 0 {
		return &NoPermissionError{Permission: p}
	}
	return nil
}

// RunMulticall executes a batch of actions on the caller's account. The batch
// is atomic: all state changes land together after the account passes the
// full collateral check, or none land at all.
func (e *Engine) RunMulticall(caller, account common.Address, actions []Action) error {
	if e == nil || e.state == nil || e.oracle == nil || e.pool == nil {
		return ErrEngineNotConfigured
	}
	acc, err := e.GetCreditAccount(account)
	if err != nil {
		return err
	}
	if acc.Owner != caller {
		return ErrCallerNotOwner
	}
	return e.runMulticall(caller, account, acc, actions, AllPermissions)
}

// BotMulticall executes a batch on behalf of an account by an approved bot,
// restricted to the permissions the owner granted and the engine-wide bot
// capability mask.
func (e *Engine) BotMulticall(bot, account common.Address, actions []Action) error {
	if e == nil || e.state == nil || e.oracle == nil || e.pool == nil {
		return ErrEngineNotConfigured
	}
	if e.forbiddenBots[bot] {
		return ErrNotApprovedBot
	}
	acc, err := e.GetCreditAccount(account)
	if err != nil {
		return err
	}
	if acc.Flags&FlagBotPermissionsSet == 0 {
		return ErrNotApprovedBot
	}
	perms := e.bots[account][bot] & e.botCapabilities
	if perms == 0 {
		return ErrNotApprovedBot
	}
	return e.runMulticall(bot, account, acc, actions, perms)
}

func (e *Engine) runMulticall(caller, account common.Address, acc *CreditAccount, actions []Action, perms Permission) (err error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.active != sentinelAccount {
		return ErrAccountInUse
	}
	e.active = account
	defer func() { e.active = sentinelAccount }()

	// Quota-keeper books roll back with the batch.
	snap := e.quotas.Snapshot()
	defer func() {
		if err != nil {
			e.quotas.Restore(snap)
		}
	}()

	journal := newStateJournal(e.state)
	working := acc.Clone()
	s := &session{
		st:                 journal,
		account:            account,
		caller:             caller,
		perms:              perms,
		acc:                working,
		minHealthFactorBps: 10000,
		forbiddenBefore:    working.EnabledTokens.Intersect(e.forbiddenTokens),
	}

	e.emitter.Emit(events.CreditMulticallStarted{Account: account, Caller: caller})

	for _, action := range actions {
		if err = e.applyAction(s, action); err != nil {
			return err
		}
	}
	if err = e.sealBatch(s); err != nil {
		return err
	}
	e.emitter.Emit(events.CreditMulticallFinished{Account: account})
	return nil
}

// sealBatch runs the closing checks and lands the batch. Pool effects settle
// only here, after the account proves out, so a batch that fails anywhere
// leaves the pool book untouched.
func (e *Engine) sealBatch(s *session) error {
	// A guard armed without a matching comparison is checked implicitly at
	// the exit so slippage never slips through.
	if s.expected != nil {
		if err := e.compareBalances(s); err != nil {
			return err
		}
	}
	if err := e.checkForbiddenTokens(s); err != nil {
		return err
	}
	if err := e.fullCollateralCheck(s.st, s.account, s.acc, s.hints, s.minHealthFactorBps); err != nil {
		return err
	}
	if err := s.st.PutCreditAccount(s.account, s.acc); err != nil {
		return err
	}
	if s.lend != nil {
		if err := e.pool.Lend(s.lend, s.account); err != nil {
			return err
		}
	}
	if s.repay != nil {
		if err := e.pool.Repay(s.repay.principalRepaid, s.repay.profit, big.NewInt(0)); err != nil {
			return err
		}
	}
	if err := s.st.Commit(); err != nil {
		if s.lend != nil {
			_ = e.pool.Repay(s.lend, big.NewInt(0), big.NewInt(0))
		}
		return err
	}
	return nil
}

func (e *Engine) applyAction(s *session, action Action) error {
	switch a := action.(type) {
	case AddCollateral:
		return e.addCollateral(s, a)
	case IncreaseDebt:
		return e.increaseDebt(s, a)
	case DecreaseDebt:
		return e.decreaseDebt(s, a)
	case EnableToken:
		return e.enableToken(s, a)
	case DisableToken:
		return e.disableToken(s, a)
	case UpdateQuota:
		return e.updateQuota(s, a)
	case StoreExpectedBalances:
		return e.storeExpectedBalances(s, a)
	case CompareBalances:
		return e.compareBalances(s)
	case SetFullCheckParams:
		return e.setFullCheckParams(s, a)
	case RevokeAdapterAllowances:
		return e.revokeAllowances(s, a)
	case CallAdapter:
		return e.callAdapter(s, a)
	default:
		return ErrUnknownMethod
	}
}

func (e *Engine) addCollateral(s *session, a AddCollateral) error {
	if err := s.require(PermAddCollateral); err != nil {
		return err
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return ErrIncorrectParameter
	}
	bit, err := e.TokenBit(a.Token)
	if err != nil {
		return err
	}
	if err := transfer(s.st, a.Token, s.caller, s.account, a.Amount); err != nil {
		return err
	}
	return e.enableBit(s, bit)
}

func (e *Engine) increaseDebt(s *session, a IncreaseDebt) error {
	if err := s.require(PermIncreaseDebt); err != nil {
		return err
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return ErrIncorrectParameter
	}
	if e.borrowingForbidden {
		return ErrBorrowingForbidden
	}
	if !s.acc.EnabledTokens.Intersect(e.forbiddenTokens).IsZero() {
		return ErrForbiddenTokensEnabled
	}
	if err := e.guardDebtAction(s.account); err != nil {
		return err
	}
	if err := e.trackBlockBorrow(a.Amount); err != nil {
		return err
	}
	upd, err := e.manageDebt(s.st, s.account, s.acc, a.Amount, true)
	if err != nil {
		return err
	}
	if e.limits.MaxDebt.Sign() > 0 && upd.newPrincipal.Cmp(e.limits.MaxDebt) > 0 {
		return ErrBorrowAmountOutOfLimits
	}
	s.lend = cloneBig(a.Amount)
	// Lent funds land on the account's underlying balance.
	bal, err := s.st.GetBalance(e.Underlying(), s.account)
	if err != nil {
		return err
	}
	if err := s.st.SetBalance(e.Underlying(), s.account, bal.Add(bal, a.Amount)); err != nil {
		return err
	}
	s.debtIncreased = true
	e.lastDebtAction[s.account] = debtAction{block: e.blockNumber, increase: true}
	return nil
}

func (e *Engine) decreaseDebt(s *session, a DecreaseDebt) error {
	if err := s.require(PermDecreaseDebt); err != nil {
		return err
	}
	if err := e.guardDebtAction(s.account); err != nil {
		return err
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return ErrIncorrectParameter
	}
	underlying := e.Underlying()
	bal, err := s.st.GetBalance(underlying, s.account)
	if err != nil {
		return err
	}
	if bal.Cmp(a.Amount) < 0 {
		return ErrInsufficientAccountFunds
	}
	upd, err := e.manageDebt(s.st, s.account, s.acc, a.Amount, false)
	if err != nil {
		return err
	}
	if upd.newPrincipal.Sign() > 0 && upd.newPrincipal.Cmp(e.limits.MinDebt) < 0 {
		return ErrBorrowAmountOutOfLimits
	}
	if upd.newPrincipal.Sign() == 0 {
		// Full repayment goes through closure, not a debt decrease.
		return ErrBorrowAmountOutOfLimits
	}
	if err := s.st.SetBalance(underlying, s.account, new(big.Int).Sub(bal, a.Amount)); err != nil {
		return err
	}
	s.repay = upd
	e.lastDebtAction[s.account] = debtAction{block: e.blockNumber, increase: false}
	return nil
}

func (e *Engine) enableToken(s *session, a EnableToken) error {
	if err := s.require(PermEnableToken); err != nil {
		return err
	}
	bit, err := e.TokenBit(a.Token)
	if err != nil {
		return err
	}
	if e.quotas != nil && e.quotas.Quoted(a.Token) {
		// Quoted token enablement tracks the quota, not this action.
		return ErrTokenNotAllowed
	}
	return e.enableBit(s, bit)
}

func (e *Engine) disableToken(s *session, a DisableToken) error {
	if err := s.require(PermDisableToken); err != nil {
		return err
	}
	bit, err := e.TokenBit(a.Token)
	if err != nil {
		return err
	}
	if bit == 0 {
		return nil
	}
	if e.quotas != nil && e.quotas.Quoted(a.Token) {
		return ErrTokenNotAllowed
	}
	s.acc.EnabledTokens = s.acc.EnabledTokens.Disable(bit)
	return nil
}

func (e *Engine) updateQuota(s *session, a UpdateQuota) error {
	if err := s.require(PermUpdateQuota); err != nil {
		return err
	}
	if e.quotas == nil {
		return ErrTokenNotAllowed
	}
	if a.Change == nil || a.Change.Sign() == 0 {
		return ErrIncorrectParameter
	}
	bit, err := e.TokenBit(a.Token)
	if err != nil {
		return err
	}
	enabled, err := e.quotas.UpdateQuota(s.st, s.account, s.acc, a.Token, a.Change, e.timestamp)
	if err != nil {
		return err
	}
	if enabled {
		return e.enableBit(s, bit)
	}
	s.acc.EnabledTokens = s.acc.EnabledTokens.Disable(bit)
	return nil
}

func (e *Engine) storeExpectedBalances(s *session, a StoreExpectedBalances) error {
	if s.expected != nil {
		return ErrExpectedBalancesAlreadySet
	}
	s.expected = make(map[common.Address]*big.Int, len(a.Deltas))
	for _, d := range a.Deltas {
		if _, err := e.TokenBit(d.Token); err != nil {
			return err
		}
		bal, err := s.st.GetBalance(d.Token, s.account)
		if err != nil {
			return err
		}
		delta := d.Amount
		if delta == nil {
			delta = big.NewInt(0)
		}
		s.expected[d.Token] = new(big.Int).Add(bal, delta)
	}
	return nil
}

func (e *Engine) compareBalances(s *session) error {
	if s.expected == nil {
		return ErrExpectedBalancesNotSet
	}
	for token, want := range s.expected {
		bal, err := s.st.GetBalance(token, s.account)
		if err != nil {
			return err
		}
		if bal.Cmp(want) < 0 {
			return ErrBalanceLessThanExpected
		}
	}
	s.expected = nil
	return nil
}

func (e *Engine) setFullCheckParams(s *session, a SetFullCheckParams) error {
	if a.MinHealthFactorBps < 10000 {
		return ErrMinHealthFactorTooLow
	}
	for _, bit := range a.CollateralHints {
		if _, ok := e.tokenByBit[bit]; !ok {
			return ErrIncorrectBitMask
		}
	}
	s.hints = a.CollateralHints
	s.minHealthFactorBps = a.MinHealthFactorBps
	return nil
}

func (e *Engine) revokeAllowances(s *session, a RevokeAdapterAllowances) error {
	if err := s.require(PermRevokeAllowances); err != nil {
		return err
	}
	for _, r := range a.Revocations {
		delete(e.approvals, approvalKey{account: s.account, spender: r.Spender, token: r.Token})
	}
	return nil
}

func (e *Engine) callAdapter(s *session, a CallAdapter) error {
	if err := s.require(PermExternalCalls); err != nil {
		return err
	}
	adapter, ok := e.adapters[a.Target]
	if !ok {
		return ErrTargetContractNotAllowed
	}
	_, err := adapter.Execute(s.account, a.Input)
	return err
}

// enableBit sets a collateral bit, holding the enabled-token count under the
// walk bound.
func (e *Engine) enableBit(s *session, bit uint) error {
	next := s.acc.EnabledTokens.Enable(bit)
	if enabledTokenCount(next) > maxEnabledTokens {
		return ErrTooManyTokens
	}
	s.acc.EnabledTokens = next
	return nil
}

// guardDebtAction enforces one debt update per account per block.
func (e *Engine) guardDebtAction(account common.Address) error {
	if last, ok := e.lastDebtAction[account]; ok && last.block == e.blockNumber {
		return ErrDebtUpdatedTwiceInOneBlock
	}
	return nil
}

// checkForbiddenTokens rejects batches that acquired new forbidden exposure:
// a forbidden bit may survive a multicall only if it was set on entry, and
// never alongside a debt increase.
func (e *Engine) checkForbiddenTokens(s *session) error {
	enabledForbidden := s.acc.EnabledTokens.Intersect(e.forbiddenTokens)
	if enabledForbidden.IsZero() {
		return nil
	}
	if s.debtIncreased {
		return ErrForbiddenTokensEnabled
	}
	if !enabledForbidden.Without(s.forbiddenBefore).IsZero() {
		return ErrForbiddenTokensEnabled
	}
	return nil
}

// SetBotPermissions lets an account owner delegate a permission subset to a
// bot. A zero mask removes the bot.
func (e *Engine) SetBotPermissions(caller, account, bot common.Address, perms Permission) error {
	if e == nil || e.state == nil {
		return ErrEngineNotConfigured
	}
	acc, err := e.GetCreditAccount(account)
	if err != nil {
		return err
	}
	if acc.Owner != caller {
		return ErrCallerNotOwner
	}
	if perms&^AllPermissions != 0 {
		return ErrIncorrectParameter
	}
	grants := e.bots[account]
	if perms == 0 {
		delete(grants, bot)
	} else {
		if grants == nil {
			grants = make(map[common.Address]Permission)
			e.bots[account] = grants
		}
		grants[bot] = perms
	}
	if len(e.bots[account]) == 0 {
		acc.Flags &^= FlagBotPermissionsSet
	} else {
		acc.Flags |= FlagBotPermissionsSet
	}
	return e.state.PutCreditAccount(account, acc)
}

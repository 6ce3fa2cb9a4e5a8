package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Configurator is the governance surface over an engine. Every mutator is
// gated on a role map: configurators change risk parameters, pause admins
// work the switchboard, controllers tune the faster-moving dials (limits,
// rates, forbidden lists).
type Configurator struct {
	engine *Engine

	configurators map[common.Address]bool
	pauseAdmins   map[common.Address]bool
	controllers   map[common.Address]bool
}

// NewConfigurator wraps an engine with a governance surface. The admin
// address starts out holding every role.
func NewConfigurator(engine *Engine, admin common.Address) *Configurator {
	c := &Configurator{
		engine:        engine,
		configurators: make(map[common.Address]bool),
		pauseAdmins:   make(map[common.Address]bool),
		controllers:   make(map[common.Address]bool),
	}
	c.configurators[admin] = true
	c.pauseAdmins[admin] = true
	c.controllers[admin] = true
	return c
}

func (c *Configurator) requireConfigurator(caller common.Address) error {
	if !c.configurators[caller] {
		return ErrCallerNotConfigurator
	}
	return nil
}

func (c *Configurator) requirePauseAdmin(caller common.Address) error {
	if !c.pauseAdmins[caller] {
		return ErrCallerNotPausableAdmin
	}
	return nil
}

func (c *Configurator) requireController(caller common.Address) error {
	if !c.controllers[caller] && !c.configurators[caller] {
		return ErrCallerNotController
	}
	return nil
}

// GrantConfigurator adds a configurator. Only configurators can extend roles.
func (c *Configurator) GrantConfigurator(caller, grantee common.Address) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	c.configurators[grantee] = true
	return nil
}

// GrantPauseAdmin adds a pause admin.
func (c *Configurator) GrantPauseAdmin(caller, grantee common.Address) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	c.pauseAdmins[grantee] = true
	return nil
}

// GrantController adds a controller.
func (c *Configurator) GrantController(caller, grantee common.Address) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	c.controllers[grantee] = true
	return nil
}

// AddCollateralToken registers a new collateral token at the next free bit.
// The token needs a live price feed and an LT no higher than the
// underlying's.
func (c *Configurator) AddCollateralToken(caller, token common.Address, ltInitialBps uint16) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	e := c.engine
	if e.oracle == nil {
		return ErrEngineNotConfigured
	}
	if !e.oracle.HasPriceFeed(token) {
		return ErrPriceFeedDoesNotExist
	}
	if _, ok := e.tokenIndex[token]; ok {
		return ErrTokenAlreadyAdded
	}
	if len(e.tokens) >= 256 {
		return ErrTooManyTokens
	}
	if ltInitialBps > e.tokens[0].LTInitialBps {
		return ErrIncorrectLiquidationThreshold
	}
	bit := uint(len(e.tokens))
	data := &CollateralTokenData{
		Token:        token,
		Bit:          bit,
		LTInitialBps: ltInitialBps,
		LTFinalBps:   ltInitialBps,
	}
	e.tokens = append(e.tokens, data)
	e.tokenByBit[bit] = data
	e.tokenIndex[token] = bit
	return nil
}

// SetLiquidationThreshold sets a token's LT immediately, cancelling any
// active ramp.
func (c *Configurator) SetLiquidationThreshold(caller, token common.Address, ltBps uint16) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	e := c.engine
	bit, err := e.TokenBit(token)
	if err != nil {
		return err
	}
	if bit != 0 && ltBps > e.tokens[0].LTInitialBps {
		return ErrIncorrectLiquidationThreshold
	}
	data := e.tokenByBit[bit]
	data.LTInitialBps = ltBps
	data.LTFinalBps = ltBps
	data.RampStart = 0
	data.RampDuration = 0
	return nil
}

// RampLiquidationThreshold schedules a linear LT move from the token's
// current value to ltFinal over the given window.
func (c *Configurator) RampLiquidationThreshold(caller, token common.Address, ltFinalBps uint16, rampStart uint64, rampDuration uint32) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	e := c.engine
	bit, err := e.TokenBit(token)
	if err != nil {
		return err
	}
	if bit == 0 {
		return ErrIncorrectLiquidationThreshold
	}
	if ltFinalBps > e.tokens[0].LTInitialBps || rampDuration == 0 {
		return ErrIncorrectParameter
	}
	if rampStart < e.timestamp {
		rampStart = e.timestamp
	}
	data := e.tokenByBit[bit]
	data.LTInitialBps = uint16(liquidationThreshold(data, e.timestamp))
	data.LTFinalBps = ltFinalBps
	data.RampStart = rampStart
	data.RampDuration = rampDuration
	return nil
}

// SetFees replaces the fee configuration after validation.
func (c *Configurator) SetFees(caller common.Address, fees Fees) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	if err := fees.Validate(); err != nil {
		return err
	}
	c.engine.fees = fees
	return nil
}

// SetBorrowLimits replaces the debt bounds.
func (c *Configurator) SetBorrowLimits(caller common.Address, minDebt, maxDebt *big.Int) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	if minDebt == nil || maxDebt == nil || minDebt.Sign() <= 0 || maxDebt.Cmp(minDebt) < 0 {
		return ErrIncorrectParameter
	}
	c.engine.limits.MinDebt = cloneBig(minDebt)
	c.engine.limits.MaxDebt = cloneBig(maxDebt)
	return nil
}

// SetMaxDebtPerBlockMultiplier tunes the per-block borrow cap.
func (c *Configurator) SetMaxDebtPerBlockMultiplier(caller common.Address, multiplier uint8) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	if multiplier == 0 {
		return ErrIncorrectParameter
	}
	c.engine.limits.MaxDebtPerBlockMultiplier = multiplier
	return nil
}

// SetMaxCumulativeLoss sets the write-down ceiling.
func (c *Configurator) SetMaxCumulativeLoss(caller common.Address, ceiling *big.Int) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.engine.limits.MaxCumulativeLoss = cloneBig(ceiling)
	return nil
}

// ResetCumulativeLoss zeroes the running write-down counter.
func (c *Configurator) ResetCumulativeLoss(caller common.Address) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	c.engine.cumulativeLoss = big.NewInt(0)
	return nil
}

// ForbidToken marks a collateral token forbidden: existing exposure may only
// shrink and debt cannot grow while the bit stays enabled.
func (c *Configurator) ForbidToken(caller, token common.Address) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	e := c.engine
	bit, err := e.TokenBit(token)
	if err != nil {
		return err
	}
	if bit == 0 {
		return ErrIncorrectParameter
	}
	e.forbiddenTokens = e.forbiddenTokens.Enable(bit)
	return nil
}

// AllowToken lifts a token's forbidden status.
func (c *Configurator) AllowToken(caller, token common.Address) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	e := c.engine
	bit, err := e.TokenBit(token)
	if err != nil {
		return err
	}
	e.forbiddenTokens = e.forbiddenTokens.Disable(bit)
	return nil
}

// ForbidBorrowing stops new debt without pausing the whole module.
func (c *Configurator) ForbidBorrowing(caller common.Address) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.engine.borrowingForbidden = true
	return nil
}

// AllowBorrowing re-enables new debt.
func (c *Configurator) AllowBorrowing(caller common.Address) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.engine.borrowingForbidden = false
	return nil
}

// SetExpirationDate arms expired-mode liquidation at the given timestamp.
// Zero disarms it.
func (c *Configurator) SetExpirationDate(caller common.Address, timestamp uint64) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	if timestamp != 0 && timestamp <= c.engine.timestamp {
		return ErrIncorrectParameter
	}
	c.engine.expirationDate = timestamp
	return nil
}

// AddEmergencyLiquidator whitelists an address to liquidate while paused.
func (c *Configurator) AddEmergencyLiquidator(caller, liquidator common.Address) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	c.engine.emergencyLiquidators[liquidator] = true
	return nil
}

// RemoveEmergencyLiquidator drops an address from the whitelist.
func (c *Configurator) RemoveEmergencyLiquidator(caller, liquidator common.Address) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	delete(c.engine.emergencyLiquidators, liquidator)
	return nil
}

// SetBotCapabilities narrows the engine-wide mask every bot grant is
// intersected with.
func (c *Configurator) SetBotCapabilities(caller common.Address, caps Permission) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	if caps&^AllPermissions != 0 {
		return ErrIncorrectParameter
	}
	c.engine.botCapabilities = caps
	return nil
}

// ForbidBot blocks a bot address across all accounts.
func (c *Configurator) ForbidBot(caller, bot common.Address) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.engine.forbiddenBots[bot] = true
	return nil
}

// AllowBot lifts a bot's block.
func (c *Configurator) AllowBot(caller, bot common.Address) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	delete(c.engine.forbiddenBots, bot)
	return nil
}

// AddQuotedToken moves a registered collateral token under quota accounting.
func (c *Configurator) AddQuotedToken(caller, token common.Address, rateBps uint64, limit *big.Int) error {
	if err := c.requireConfigurator(caller); err != nil {
		return err
	}
	e := c.engine
	if e.quotas == nil {
		return ErrEngineNotConfigured
	}
	bit, err := e.TokenBit(token)
	if err != nil {
		return err
	}
	if bit == 0 {
		return ErrIncorrectParameter
	}
	if e.quotas.Quoted(token) {
		return ErrTokenAlreadyAdded
	}
	e.quotas.AddQuotedToken(token, rateBps, limit, e.timestamp)
	e.tokenByBit[bit].Quoted = true
	return nil
}

// SetQuotaRate updates a quoted token's yearly rate.
func (c *Configurator) SetQuotaRate(caller, token common.Address, rateBps uint64) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	if c.engine.quotas == nil {
		return ErrEngineNotConfigured
	}
	return c.engine.quotas.SetTokenRate(token, rateBps, c.engine.timestamp)
}

// SetQuotaLimit updates a quoted token's global cap.
func (c *Configurator) SetQuotaLimit(caller, token common.Address, limit *big.Int) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	if c.engine.quotas == nil {
		return ErrEngineNotConfigured
	}
	return c.engine.quotas.SetTokenLimit(token, limit)
}

// Pause halts the credit module.
func (c *Configurator) Pause(caller common.Address) error {
	if err := c.requirePauseAdmin(caller); err != nil {
		return err
	}
	c.engine.pauses.Pause(moduleName)
	return nil
}

// Unpause lifts the halt. Borrowing stays forbidden after a loss until
// explicitly re-allowed.
func (c *Configurator) Unpause(caller common.Address) error {
	if err := c.requirePauseAdmin(caller); err != nil {
		return err
	}
	c.engine.pauses.Resume(moduleName)
	return nil
}

package credit

import (
	"math/big"
	"testing"
)

func TestCloseCreditAccount(t *testing.T) {
	rig := newTestRig(t)
	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_300))

	remaining, loss, err := rig.engine.CloseCreditAccount(testOwner, handle, ClosureClose, testOwner, testOwner, TokenMask{}, false)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if loss.Sign() != 0 {
		t.Fatalf("loss = %s, want 0", loss)
	}
	// 1300 - 1000 to pool - 1 retained unit.
	if remaining.Cmp(big.NewInt(299)) != 0 {
		t.Fatalf("remaining = %s, want 299", remaining)
	}
	if got := rig.state.balance(underlyingToken, testOwner); got.Cmp(big.NewInt(299)) != 0 {
		t.Fatalf("owner received %s, want 299", got)
	}
	if _, err := rig.engine.GetCreditAccount(handle); err != ErrAccountNotFound {
		t.Fatalf("account should be destroyed, got %v", err)
	}
	if rig.pool.Borrowed().Sign() != 0 {
		t.Fatalf("pool borrowed = %s, want 0", rig.pool.Borrowed())
	}
}

func TestCloseCreditAccountGuards(t *testing.T) {
	rig := newTestRig(t)

	rig.state.SetBalance(underlyingToken, testOwner, big.NewInt(600))
	handle, err := rig.engine.OpenCreditAccount(testOwner, big.NewInt(1_000), []Action{
		AddCollateral{Token: underlyingToken, Amount: big.NewInt(600)},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := rig.engine.CloseCreditAccount(testOwner, handle, ClosureClose, testOwner, testOwner, TokenMask{}, false); err != ErrCloseAccountInSameBlock {
		t.Fatalf("got %v, want ErrCloseAccountInSameBlock", err)
	}

	rig.engine.SetBlockContext(11, 1_002)
	if _, _, err := rig.engine.CloseCreditAccount(addr(0x99), handle, ClosureClose, addr(0x99), addr(0x99), TokenMask{}, false); err != ErrCallerNotOwner {
		t.Fatalf("got %v, want ErrCallerNotOwner", err)
	}
}

func TestLiquidateRejectsHealthyAccount(t *testing.T) {
	rig := newTestRig(t)
	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_300))

	liquidator := addr(0x55)
	if _, _, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidate, liquidator, liquidator, TokenMask{}, false); err != ErrNotLiquidatable {
		t.Fatalf("got %v, want ErrNotLiquidatable", err)
	}
}

func TestLiquidateExactFeeFormula(t *testing.T) {
	rig := newTestRig(t)
	// feeLiquidation = 1000 bps, premium = 1000 bps (discount 9000).
	fees := testFees()
	fees.LiquidationBps = 1_000
	fees.LiquidationDiscountBps = 9_000
	if err := rig.config.SetFees(testAdmin, fees); err != nil {
		t.Fatalf("set fees: %v", err)
	}

	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_050))

	liquidator := addr(0x55)
	remaining, loss, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidate, liquidator, liquidator, TokenMask{}, false)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// amountToPool = 1000*9000/10000 + 1050*1000/10000 = 900 + 105 = 1005.
	// Surplus 45 less the retained unit goes to the liquidator.
	if loss.Sign() != 0 {
		t.Fatalf("loss = %s, want 0", loss)
	}
	if remaining.Cmp(big.NewInt(44)) != 0 {
		t.Fatalf("remaining = %s, want 44", remaining)
	}
	if got := rig.state.balance(underlyingToken, liquidator); got.Cmp(big.NewInt(44)) != 0 {
		t.Fatalf("liquidator received %s, want 44", got)
	}
}

func TestLiquidationShortfallBecomesLoss(t *testing.T) {
	rig := newTestRig(t)
	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(500))

	liquidator := addr(0x55)
	rig.state.SetBalance(underlyingToken, liquidator, big.NewInt(100))

	remaining, loss, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidate, liquidator, liquidator, TokenMask{}, false)
	if err != nil {
		t.Fatalf("liquidation must complete despite shortfall: %v", err)
	}
	// amountToPool = 1000*9600/10000 + 500*150/10000 = 960 + 7 = 967.
	// Account 500 + payer 100 leaves 367 unpaid.
	if loss.Cmp(big.NewInt(367)) != 0 {
		t.Fatalf("loss = %s, want 367", loss)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("remaining = %s, want 0", remaining)
	}
	if got := rig.state.balance(underlyingToken, liquidator); got.Sign() != 0 {
		t.Fatalf("payer should be drained, has %s", got)
	}
	if rig.engine.CumulativeLoss().Cmp(big.NewInt(367)) != 0 {
		t.Fatalf("cumulative loss = %s, want 367", rig.engine.CumulativeLoss())
	}
	if !rig.engine.pauses.IsPaused(moduleName) {
		t.Fatalf("module must pause after a write-down")
	}
	if !rig.engine.borrowingForbidden {
		t.Fatalf("borrowing must be forbidden after a write-down")
	}
	if _, err := rig.engine.GetCreditAccount(handle); err != ErrAccountNotFound {
		t.Fatalf("account must still be destroyed, got %v", err)
	}
}

func TestLiquidationWhilePausedNeedsEmergencyLiquidator(t *testing.T) {
	rig := newTestRig(t)
	handle := rig.openAccount(t, 1_000)
	rig.engine.pauses.Pause(moduleName)

	liquidator := addr(0x55)
	if _, _, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidate, liquidator, liquidator, TokenMask{}, false); err != ErrOnlyEmergencyLiquidators {
		t.Fatalf("got %v, want ErrOnlyEmergencyLiquidators", err)
	}

	if err := rig.config.AddEmergencyLiquidator(testAdmin, liquidator); err != nil {
		t.Fatalf("whitelist liquidator: %v", err)
	}
	if _, _, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidate, liquidator, liquidator, TokenMask{}, false); err != nil {
		t.Fatalf("emergency liquidation: %v", err)
	}
}

func TestLiquidateExpired(t *testing.T) {
	rig := newTestRig(t)
	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_300))

	liquidator := addr(0x55)
	if _, _, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidateExpired, liquidator, liquidator, TokenMask{}, false); err != ErrNotExpired {
		t.Fatalf("got %v, want ErrNotExpired before expiry is armed", err)
	}

	if err := rig.config.SetExpirationDate(testAdmin, 2_000); err != nil {
		t.Fatalf("set expiration: %v", err)
	}
	rig.engine.SetBlockContext(12, 2_001)

	// Expired liquidation settles even a healthy account, at the expired
	// fee pair: 1000*9800/10000 + 1300*100/10000 = 980 + 13 = 993.
	remaining, loss, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidateExpired, liquidator, liquidator, TokenMask{}, false)
	if err != nil {
		t.Fatalf("liquidate expired: %v", err)
	}
	if loss.Sign() != 0 {
		t.Fatalf("loss = %s, want 0", loss)
	}
	if remaining.Cmp(big.NewInt(306)) != 0 {
		t.Fatalf("remaining = %s, want 306", remaining)
	}
}

func TestLiquidationConservationAcrossFeeGrid(t *testing.T) {
	discounts := []uint16{9_000, 9_600, 9_800}
	feeRates := []uint16{50, 150, 400, 1_000}
	balances := []int64{500, 900, 1_050}

	for _, discount := range discounts {
		for _, feeRate := range feeRates {
			fees := testFees()
			fees.LiquidationBps = feeRate
			fees.LiquidationDiscountBps = discount
			if fees.Validate() != nil {
				continue
			}
			for _, balance := range balances {
				rig := newTestRig(t)
				if err := rig.config.SetFees(testAdmin, fees); err != nil {
					t.Fatalf("set fees: %v", err)
				}
				handle := rig.openAccount(t, 1_000)
				rig.state.SetBalance(underlyingToken, handle, big.NewInt(balance))

				liquidator := addr(0x55)
				remaining, loss, err := rig.engine.CloseCreditAccount(liquidator, handle, ClosureLiquidate, liquidator, liquidator, TokenMask{}, false)
				if err != nil {
					t.Fatalf("liquidate (d=%d f=%d b=%d): %v", discount, feeRate, balance, err)
				}

				// No interest accrued, so amountToPool is the pure formula.
				amountToPool := new(big.Int).Add(
					bpsMul(big.NewInt(1_000), uint64(discount)),
					bpsMul(big.NewInt(balance), uint64(feeRate)),
				)
				paid := bigMin(big.NewInt(balance), amountToPool)
				wantLoss := new(big.Int).Sub(amountToPool, paid)
				surplus := new(big.Int).Sub(big.NewInt(balance), paid)
				wantRemaining := big.NewInt(0)
				if surplus.Cmp(oneUnit) > 0 {
					wantRemaining = new(big.Int).Sub(surplus, oneUnit)
				}
				if loss.Cmp(wantLoss) != 0 {
					t.Fatalf("loss (d=%d f=%d b=%d) = %s, want %s", discount, feeRate, balance, loss, wantLoss)
				}
				if remaining.Cmp(wantRemaining) != 0 {
					t.Fatalf("remaining (d=%d f=%d b=%d) = %s, want %s", discount, feeRate, balance, remaining, wantRemaining)
				}
				// Every unit of the account balance is accounted for: paid to
				// the pool, paid out, or retained on the handle.
				retained := new(big.Int).Sub(surplus, wantRemaining)
				total := new(big.Int).Add(paid, wantRemaining)
				total.Add(total, retained)
				if total.Cmp(big.NewInt(balance)) != 0 {
					t.Fatalf("conservation broken (d=%d f=%d b=%d): %s != %d", discount, feeRate, balance, total, balance)
				}
			}
		}
	}
}

func TestCloseSweepsCollateralHonoringSkipMask(t *testing.T) {
	rig := newTestRig(t)
	tokenA := addr(0xB1)
	tokenB := addr(0xB2)
	bitA := rig.addToken(t, tokenA, 9_000, 1_000)
	bitB := rig.addToken(t, tokenB, 9_000, 1_000)

	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_000))
	rig.state.SetBalance(tokenA, handle, big.NewInt(77))
	rig.state.SetBalance(tokenB, handle, big.NewInt(88))
	acc, _ := rig.engine.GetCreditAccount(handle)
	acc.EnabledTokens = acc.EnabledTokens.Enable(bitA).Enable(bitB)

	_, _, err := rig.engine.CloseCreditAccount(testOwner, handle, ClosureClose, testOwner, testOwner, MaskOfBit(bitB), false)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := rig.state.balance(tokenA, testOwner); got.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("swept tokenA = %s, want 77", got)
	}
	if got := rig.state.balance(tokenB, testOwner); got.Sign() != 0 {
		t.Fatalf("skipped tokenB must stay put, owner has %s", got)
	}
	if got := rig.state.balance(tokenB, handle); got.Cmp(big.NewInt(88)) != 0 {
		t.Fatalf("tokenB should remain on the handle, has %s", got)
	}
}

func TestCloseZeroesQuotas(t *testing.T) {
	rig := newTestRig(t)
	tokenA := addr(0xB1)
	rig.addToken(t, tokenA, 8_000, 1_000)
	if err := rig.config.AddQuotedToken(testAdmin, tokenA, 100, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("add quoted token: %v", err)
	}

	handle := rig.openAccount(t, 1_000)
	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_300))
	rig.state.PutQuota(handle, tokenA, &QuotaInfo{Quota: big.NewInt(200), CumulativeIndexLU: cloneBig(ray)})

	if _, _, err := rig.engine.CloseCreditAccount(testOwner, handle, ClosureClose, testOwner, testOwner, TokenMask{}, false); err != nil {
		t.Fatalf("close: %v", err)
	}
	if q, _ := rig.state.GetQuota(handle, tokenA); q != nil {
		t.Fatalf("quota record should be deleted on close")
	}
	// A clean close keeps the governance limit intact.
	if rig.engine.quotas.TokenLimit(tokenA).Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("token limit should survive a lossless close")
	}
}

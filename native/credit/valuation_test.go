package credit

import (
	"math/big"
	"testing"
)

func TestLiquidationThresholdRamp(t *testing.T) {
	data := &CollateralTokenData{
		LTInitialBps: 9_000,
		LTFinalBps:   8_000,
		RampStart:    100,
		RampDuration: 200,
	}

	cases := []struct {
		now  uint64
		want uint64
	}{
		{now: 0, want: 9_000},
		{now: 99, want: 9_000},
		{now: 100, want: 9_000},
		{now: 200, want: 8_500},
		{now: 250, want: 8_250},
		{now: 300, want: 8_000},
		{now: 1_000, want: 8_000},
	}
	for _, tc := range cases {
		if got := liquidationThreshold(data, tc.now); got != tc.want {
			t.Fatalf("lt at %d = %d, want %d", tc.now, got, tc.want)
		}
	}
}

func TestLiquidationThresholdWithoutRamp(t *testing.T) {
	data := &CollateralTokenData{LTInitialBps: 9_300, LTFinalBps: 9_300}
	if got := liquidationThreshold(data, 12345); got != 9_300 {
		t.Fatalf("static lt = %d, want 9300", got)
	}
}

func TestCalcDebtAndCollateral(t *testing.T) {
	rig := newTestRig(t)
	tokenA := addr(0xB1)
	rig.addToken(t, tokenA, 8_000, 2_000) // 2 underlying per unit

	handle := rig.openAccount(t, 1_000)
	acc, _ := rig.engine.GetCreditAccount(handle)
	acc.EnabledTokens = acc.EnabledTokens.Enable(1)
	rig.state.SetBalance(tokenA, handle, big.NewInt(500))

	cdd, err := rig.engine.CalcDebtAndCollateral(handle)
	if err != nil {
		t.Fatalf("calc: %v", err)
	}
	// Underlying 1000 at par + 500 tokenA at rate 2 = 2000 total value.
	if cdd.TotalValue.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("total value = %s, want 2000", cdd.TotalValue)
	}
	// 1000*93% + 1000*80% = 1730 weighted.
	if cdd.TWV.Cmp(big.NewInt(1_730)) != 0 {
		t.Fatalf("twv = %s, want 1730", cdd.TWV)
	}
	if cdd.Principal.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("principal = %s, want 1000", cdd.Principal)
	}
}

func TestQuotedTokenValueCappedByQuota(t *testing.T) {
	rig := newTestRig(t)
	tokenA := addr(0xB1)
	rig.addToken(t, tokenA, 8_000, 1_000)
	if err := rig.config.AddQuotedToken(testAdmin, tokenA, 0, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("add quoted token: %v", err)
	}

	handle := rig.openAccount(t, 1_000)
	acc, _ := rig.engine.GetCreditAccount(handle)
	acc.EnabledTokens = acc.EnabledTokens.Enable(1)
	rig.state.SetBalance(tokenA, handle, big.NewInt(10_000))
	rig.state.PutQuota(handle, tokenA, &QuotaInfo{Quota: big.NewInt(300), CumulativeIndexLU: cloneBig(ray)})

	cdd, err := rig.engine.CalcDebtAndCollateral(handle)
	if err != nil {
		t.Fatalf("calc: %v", err)
	}
	// Weighted value counts min(converted, quota): 1000*9300/10000 + 300*8000/10000.
	want := big.NewInt(930 + 240)
	if cdd.TWV.Cmp(want) != 0 {
		t.Fatalf("twv = %s, want %s", cdd.TWV, want)
	}
	// Total value stays unweighted and uncapped.
	if cdd.TotalValue.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("total value = %s, want 11000", cdd.TotalValue)
	}
}

func TestIsLiquidatable(t *testing.T) {
	rig := newTestRig(t)
	handle := rig.openAccount(t, 1_000)

	// The handle holds exactly its principal, the shape an account takes
	// after its collateral bleeds value: twv = 930 < 1000 debt.
	liq, err := rig.engine.IsLiquidatable(handle)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if !liq {
		t.Fatalf("account worth only its principal should be below water")
	}

	rig.state.SetBalance(underlyingToken, handle, big.NewInt(1_200))
	liq, err = rig.engine.IsLiquidatable(handle)
	if err != nil {
		t.Fatalf("is liquidatable: %v", err)
	}
	if liq {
		t.Fatalf("account with 1116 twv against 1000 debt should be healthy")
	}
}

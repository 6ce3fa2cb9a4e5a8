package credit

import (
	"math/big"
	"testing"
)

func TestQuotaIndexLinearAccrual(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 1_000, big.NewInt(1_000_000), 0) // 10% yearly

	state := keeper.tokens[token]
	idx := keeper.indexNow(state, secondsPerYear)
	want := new(big.Int).Add(ray, rayScaled(1, 10))
	if idx.Cmp(want) != 0 {
		t.Fatalf("index after one year = %s, want %s", idx, want)
	}
	// Half the time, half the growth.
	idx = keeper.indexNow(state, secondsPerYear/2)
	want = new(big.Int).Add(ray, rayScaled(1, 20))
	if idx.Cmp(want) != 0 {
		t.Fatalf("index after half a year = %s, want %s", idx, want)
	}
}

func TestQuotaOutstandingInterest(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 1_000, big.NewInt(1_000_000), 0)

	st := newMockState()
	account := addr(0x01)
	st.PutQuota(account, token, &QuotaInfo{Quota: big.NewInt(10_000), CumulativeIndexLU: cloneBig(ray)})

	// 10% of 10000 quota over one year.
	got, err := keeper.OutstandingInterest(st, account, secondsPerYear)
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}
	if got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("interest = %s, want 1000", got)
	}
}

func TestUpdateQuotaClampsToLimit(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 0, big.NewInt(500), 0)

	st := newMockState()
	account := addr(0x01)
	acc := &CreditAccount{}
	acc.EnsureDefaults()

	enabled, err := keeper.UpdateQuota(st, account, acc, token, big.NewInt(2_000), 0)
	if err != nil {
		t.Fatalf("update quota: %v", err)
	}
	if !enabled {
		t.Fatalf("positive quota must report enabled")
	}
	info, _ := st.GetQuota(account, token)
	if info.Quota.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("quota = %s, want clamped 500", info.Quota)
	}
}

func TestUpdateQuotaToZeroDeletesRecord(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 0, big.NewInt(10_000), 0)

	st := newMockState()
	account := addr(0x01)
	acc := &CreditAccount{}
	acc.EnsureDefaults()

	if _, err := keeper.UpdateQuota(st, account, acc, token, big.NewInt(300), 0); err != nil {
		t.Fatalf("grow quota: %v", err)
	}
	enabled, err := keeper.UpdateQuota(st, account, acc, token, big.NewInt(-1_000), 0)
	if err != nil {
		t.Fatalf("shrink quota: %v", err)
	}
	if enabled {
		t.Fatalf("zero quota must report disabled")
	}
	if info, _ := st.GetQuota(account, token); info != nil {
		t.Fatalf("zero quota record must be deleted")
	}
}

func TestUpdateQuotaFoldsAccruedInterest(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 1_000, big.NewInt(1_000_000), 0)

	st := newMockState()
	account := addr(0x01)
	acc := &CreditAccount{}
	acc.EnsureDefaults()

	if _, err := keeper.UpdateQuota(st, account, acc, token, big.NewInt(10_000), 0); err != nil {
		t.Fatalf("open quota: %v", err)
	}
	if _, err := keeper.UpdateQuota(st, account, acc, token, big.NewInt(1), secondsPerYear); err != nil {
		t.Fatalf("touch quota a year later: %v", err)
	}
	if acc.CumulativeQuotaInterest.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("folded interest = %s, want 1000", acc.CumulativeQuotaInterest)
	}
}

func TestUpdateQuotaUnknownToken(t *testing.T) {
	keeper := NewQuotaKeeper()
	st := newMockState()
	acc := &CreditAccount{}
	acc.EnsureDefaults()

	if _, err := keeper.UpdateQuota(st, addr(0x01), acc, addr(0xC9), big.NewInt(1), 0); err != ErrTokenNotAllowed {
		t.Fatalf("got %v, want ErrTokenNotAllowed", err)
	}
}

func TestZeroQuotasWithLimitContainment(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 0, big.NewInt(10_000), 0)

	st := newMockState()
	account := addr(0x01)
	acc := &CreditAccount{}
	acc.EnsureDefaults()
	if _, err := keeper.UpdateQuota(st, account, acc, token, big.NewInt(400), 0); err != nil {
		t.Fatalf("grow quota: %v", err)
	}

	if err := keeper.ZeroQuotas(st, account, true); err != nil {
		t.Fatalf("zero quotas: %v", err)
	}
	if info, _ := st.GetQuota(account, token); info != nil {
		t.Fatalf("quota record must be gone")
	}
	if keeper.TokenLimit(token).Sign() != 0 {
		t.Fatalf("loss containment must zero the token limit")
	}
	if keeper.tokens[token].total.Sign() != 0 {
		t.Fatalf("total outstanding quota must be released")
	}
}

func TestSetTokenRateAccruesFirst(t *testing.T) {
	keeper := NewQuotaKeeper()
	token := addr(0xC1)
	keeper.AddQuotedToken(token, 1_000, big.NewInt(1_000_000), 0)

	if err := keeper.SetTokenRate(token, 2_000, secondsPerYear); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	state := keeper.tokens[token]
	// The first year accrued at the old 10% rate.
	want := new(big.Int).Add(ray, rayScaled(1, 10))
	if state.index.Cmp(want) != 0 {
		t.Fatalf("index = %s, want %s after rate change", state.index, want)
	}
	if state.rateBps != 2_000 {
		t.Fatalf("rate = %d, want 2000", state.rateBps)
	}
}

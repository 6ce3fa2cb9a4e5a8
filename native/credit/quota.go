package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// tokenQuotaState is the global side of one quoted token: its interest rate,
// total outstanding quota and cumulative quota index.
type tokenQuotaState struct {
	rateBps    uint64
	limit      *big.Int
	total      *big.Int
	index      *big.Int
	lastUpdate uint64
}

func (s *tokenQuotaState) clone() *tokenQuotaState {
	return &tokenQuotaState{
		rateBps:    s.rateBps,
		limit:      cloneBig(s.limit),
		total:      cloneBig(s.total),
		index:      cloneBig(s.index),
		lastUpdate: s.lastUpdate,
	}
}

// QuotaKeeper accrues quota interest per token and owns the per-token
// exposure limits. Rates come from the external gauge/voting subsystem and
// are set through the configurator.
type QuotaKeeper struct {
	tokens map[common.Address]*tokenQuotaState
}

// Snapshot copies the keeper's per-token books. Batches take one on entry so
// a failure can roll the global totals and indices back alongside the state
// journal.
func (k *QuotaKeeper) Snapshot() map[common.Address]*tokenQuotaState {
	if k == nil {
		return nil
	}
	snap := make(map[common.Address]*tokenQuotaState, len(k.tokens))
	for token, state := range k.tokens {
		snap[token] = state.clone()
	}
	return snap
}

// Restore replaces the keeper's books with an earlier snapshot.
func (k *QuotaKeeper) Restore(snap map[common.Address]*tokenQuotaState) {
	if k == nil {
		return
	}
	if snap == nil {
		snap = make(map[common.Address]*tokenQuotaState)
	}
	k.tokens = snap
}

// NewQuotaKeeper returns a keeper with no quoted tokens.
func NewQuotaKeeper() *QuotaKeeper {
	return &QuotaKeeper{tokens: make(map[common.Address]*tokenQuotaState)}
}

// AddQuotedToken starts quota accounting for a token at the given yearly
// rate and global limit.
func (k *QuotaKeeper) AddQuotedToken(token common.Address, rateBps uint64, limit *big.Int, now uint64) {
	if k == nil {
		return
	}
	k.tokens[token] = &tokenQuotaState{
		rateBps:    rateBps,
		limit:      cloneBig(limit),
		total:      big.NewInt(0),
		index:      new(big.Int).Set(ray),
		lastUpdate: now,
	}
}

// Quoted reports whether the token is under quota accounting.
func (k *QuotaKeeper) Quoted(token common.Address) bool {
	if k == nil {
		return false
	}
	_, ok := k.tokens[token]
	return ok
}

// SetTokenRate updates a token's yearly quota rate, accruing the index up to
// now first so past exposure keeps its old rate.
func (k *QuotaKeeper) SetTokenRate(token common.Address, rateBps uint64, now uint64) error {
	state, ok := k.tokens[token]
	if !ok {
		return ErrTokenNotAllowed
	}
	state.index = k.indexNow(state, now)
	state.lastUpdate = now
	state.rateBps = rateBps
	return nil
}

// SetTokenLimit updates a token's global quota cap.
func (k *QuotaKeeper) SetTokenLimit(token common.Address, limit *big.Int) error {
	state, ok := k.tokens[token]
	if !ok {
		return ErrTokenNotAllowed
	}
	state.limit = cloneBig(limit)
	return nil
}

// indexNow extends the stored index linearly to the given timestamp:
// index + RAY·rate·Δt / year / 10000, floored.
func (k *QuotaKeeper) indexNow(state *tokenQuotaState, now uint64) *big.Int {
	if state == nil || now <= state.lastUpdate || state.rateBps == 0 {
		return cloneBig(state.index)
	}
	delta := new(big.Int).SetUint64(now - state.lastUpdate)
	growth := new(big.Int).Mul(ray, new(big.Int).SetUint64(state.rateBps))
	growth.Mul(growth, delta)
	growth.Quo(growth, big.NewInt(secondsPerYear))
	growth.Quo(growth, basisPoints)
	return new(big.Int).Add(state.index, growth)
}

// OutstandingInterest sums quota interest accrued since each quota's last
// snapshot, without mutating any record.
func (k *QuotaKeeper) OutstandingInterest(st engineState, account common.Address, now uint64) (*big.Int, error) {
	total := big.NewInt(0)
	if k == nil {
		return total, nil
	}
	for token, state := range k.tokens {
		info, err := st.GetQuota(account, token)
		if err != nil {
			return nil, err
		}
		if info == nil || info.Quota == nil || info.Quota.Sign() == 0 {
			continue
		}
		deltaIndex := new(big.Int).Sub(k.indexNow(state, now), info.CumulativeIndexLU)
		if deltaIndex.Sign() <= 0 {
			continue
		}
		total.Add(total, rayMul(info.Quota, deltaIndex))
	}
	return total, nil
}

// Refresh folds all outstanding quota interest into the account record and
// bumps every quota snapshot to the current index.
func (k *QuotaKeeper) Refresh(st engineState, account common.Address, acc *CreditAccount, now uint64) error {
	if k == nil {
		return nil
	}
	for token, state := range k.tokens {
		info, err := st.GetQuota(account, token)
		if err != nil {
			return err
		}
		if info == nil || info.Quota == nil || info.Quota.Sign() == 0 {
			continue
		}
		idx := k.indexNow(state, now)
		deltaIndex := new(big.Int).Sub(idx, info.CumulativeIndexLU)
		if deltaIndex.Sign() > 0 {
			acc.CumulativeQuotaInterest = new(big.Int).Add(acc.CumulativeQuotaInterest, rayMul(info.Quota, deltaIndex))
		}
		info.CumulativeIndexLU = idx
		if err := st.PutQuota(account, token, info); err != nil {
			return err
		}
	}
	return nil
}

// UpdateQuota applies a signed quota change for one token, folding accrued
// interest into the account first. The change is clamped so the token's
// total quota never exceeds its limit. It reports whether the token ended
// with a positive quota, so the caller can flip the enablement bit.
func (k *QuotaKeeper) UpdateQuota(st engineState, account common.Address, acc *CreditAccount, token common.Address, change *big.Int, now uint64) (bool, error) {
	state, ok := k.tokens[token]
	if !ok {
		return false, ErrTokenNotAllowed
	}
	idx := k.indexNow(state, now)
	state.index = idx
	state.lastUpdate = now

	info, err := st.GetQuota(account, token)
	if err != nil {
		return false, err
	}
	if info == nil {
		info = &QuotaInfo{Quota: big.NewInt(0), CumulativeIndexLU: cloneBig(idx)}
	}
	if info.Quota.Sign() > 0 {
		deltaIndex := new(big.Int).Sub(idx, info.CumulativeIndexLU)
		if deltaIndex.Sign() > 0 {
			acc.CumulativeQuotaInterest = new(big.Int).Add(acc.CumulativeQuotaInterest, rayMul(info.Quota, deltaIndex))
		}
	}
	info.CumulativeIndexLU = cloneBig(idx)

	next := new(big.Int).Add(info.Quota, change)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	applied := new(big.Int).Sub(next, info.Quota)
	if applied.Sign() > 0 && state.limit.Sign() > 0 {
		headroom := new(big.Int).Sub(state.limit, state.total)
		if headroom.Sign() < 0 {
			headroom = big.NewInt(0)
		}
		if applied.Cmp(headroom) > 0 {
			applied = headroom
			next = new(big.Int).Add(info.Quota, applied)
		}
	}
	state.total = new(big.Int).Add(state.total, applied)
	info.Quota = next

	if next.Sign() == 0 {
		if err := st.DeleteQuota(account, token); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := st.PutQuota(account, token, info); err != nil {
		return false, err
	}
	return true, nil
}

// QuotaFor returns the account's current quota for a token, zero when none.
func (k *QuotaKeeper) QuotaFor(st engineState, account common.Address, token common.Address) (*big.Int, error) {
	if k == nil || !k.Quoted(token) {
		return nil, nil
	}
	info, err := st.GetQuota(account, token)
	if err != nil {
		return nil, err
	}
	if info == nil || info.Quota == nil {
		return big.NewInt(0), nil
	}
	return cloneBig(info.Quota), nil
}

// ZeroQuotas clears every quota the account holds and, as loss containment,
// zeroes the global limit for those tokens so no new exposure accumulates
// until governance resets it.
func (k *QuotaKeeper) ZeroQuotas(st engineState, account common.Address, zeroLimits bool) error {
	if k == nil {
		return nil
	}
	for token, state := range k.tokens {
		info, err := st.GetQuota(account, token)
		if err != nil {
			return err
		}
		if info == nil {
			continue
		}
		if info.Quota != nil && info.Quota.Sign() > 0 {
			state.total = new(big.Int).Sub(state.total, info.Quota)
			if state.total.Sign() < 0 {
				state.total = big.NewInt(0)
			}
			if zeroLimits {
				state.limit = big.NewInt(0)
			}
		}
		if err := st.DeleteQuota(account, token); err != nil {
			return err
		}
	}
	return nil
}

// TokenLimit returns the global quota cap for a token.
func (k *QuotaKeeper) TokenLimit(token common.Address) *big.Int {
	state, ok := k.tokens[token]
	if !ok {
		return big.NewInt(0)
	}
	return cloneBig(state.limit)
}

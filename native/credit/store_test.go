package credit

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"creditvault/storage"
)

func TestStoreAccountRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	account := addr(0x01)

	missing, err := store.GetCreditAccount(account)
	require.NoError(t, err)
	require.Nil(t, missing)

	acc := &CreditAccount{
		Owner:                     addr(0x02),
		DebtPrincipal:             big.NewInt(1_234),
		CumulativeIndexLastUpdate: cloneBig(ray),
		CumulativeQuotaInterest:   big.NewInt(7),
		EnabledTokens:             UnderlyingTokenMask.Enable(5),
		SinceBlock:                42,
		Flags:                     FlagBotPermissionsSet,
	}
	require.NoError(t, store.PutCreditAccount(account, acc))

	got, err := store.GetCreditAccount(account)
	require.NoError(t, err)
	require.Equal(t, acc.Owner, got.Owner)
	require.Zero(t, acc.DebtPrincipal.Cmp(got.DebtPrincipal))
	require.True(t, got.EnabledTokens.Eq(acc.EnabledTokens))
	require.Equal(t, uint64(42), got.SinceBlock)
	require.Equal(t, FlagBotPermissionsSet, got.Flags)

	require.NoError(t, store.DeleteCreditAccount(account))
	gone, err := store.GetCreditAccount(account)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestStoreBalances(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	token := addr(0xAA)
	holder := addr(0x01)

	bal, err := store.GetBalance(token, holder)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.NoError(t, store.SetBalance(token, holder, big.NewInt(987_654_321)))
	bal, err = store.GetBalance(token, holder)
	require.NoError(t, err)
	require.Zero(t, bal.Cmp(big.NewInt(987_654_321)))

	// Zero balances collapse back to absent records.
	require.NoError(t, store.SetBalance(token, holder, big.NewInt(0)))
	bal, err = store.GetBalance(token, holder)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestStoreQuotaRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	account := addr(0x01)
	token := addr(0xC1)

	missing, err := store.GetQuota(account, token)
	require.NoError(t, err)
	require.Nil(t, missing)

	info := &QuotaInfo{Quota: big.NewInt(500), CumulativeIndexLU: cloneBig(ray)}
	require.NoError(t, store.PutQuota(account, token, info))

	got, err := store.GetQuota(account, token)
	require.NoError(t, err)
	require.Zero(t, got.Quota.Cmp(info.Quota))
	require.Zero(t, got.CumulativeIndexLU.Cmp(ray))

	require.NoError(t, store.DeleteQuota(account, token))
	gone, err := store.GetQuota(account, token)
	require.NoError(t, err)
	require.Nil(t, gone)
}

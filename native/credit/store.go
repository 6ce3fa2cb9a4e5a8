package credit

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditvault/storage"
)

const (
	accountPrefix = "credit/account/"
	balancePrefix = "credit/balance/"
	quotaPrefix   = "credit/quota/"
)

// Store persists the credit ledger as JSON records in a key-value database.
// It implements the engine's persistence boundary: absent records come back
// as nil, nil.
type Store struct {
	db storage.Database
}

// NewStore wraps a database as the engine's backing state.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func accountKey(addr common.Address) []byte {
	return []byte(accountPrefix + addr.Hex())
}

func balanceStoreKey(token, holder common.Address) []byte {
	return []byte(balancePrefix + token.Hex() + "/" + holder.Hex())
}

func quotaKey(account, token common.Address) []byte {
	return []byte(quotaPrefix + account.Hex() + "/" + token.Hex())
}

func (s *Store) GetCreditAccount(addr common.Address) (*CreditAccount, error) {
	raw, err := s.db.Get(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("credit store: load account: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var acc CreditAccount
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("credit store: decode account: %w", err)
	}
	acc.EnsureDefaults()
	return &acc, nil
}

func (s *Store) PutCreditAccount(addr common.Address, acc *CreditAccount) error {
	if acc == nil {
		return fmt.Errorf("credit store: nil account")
	}
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("credit store: encode account: %w", err)
	}
	return s.db.Put(accountKey(addr), raw)
}

func (s *Store) DeleteCreditAccount(addr common.Address) error {
	return s.db.Delete(accountKey(addr))
}

func (s *Store) GetBalance(token, holder common.Address) (*big.Int, error) {
	raw, err := s.db.Get(balanceStoreKey(token, holder))
	if err != nil {
		return nil, fmt.Errorf("credit store: load balance: %w", err)
	}
	if raw == nil {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("credit store: corrupt balance record for %s", holder.Hex())
	}
	return amount, nil
}

func (s *Store) SetBalance(token, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return s.db.Delete(balanceStoreKey(token, holder))
	}
	return s.db.Put(balanceStoreKey(token, holder), []byte(amount.String()))
}

func (s *Store) GetQuota(account, token common.Address) (*QuotaInfo, error) {
	raw, err := s.db.Get(quotaKey(account, token))
	if err != nil {
		return nil, fmt.Errorf("credit store: load quota: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var info QuotaInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("credit store: decode quota: %w", err)
	}
	return &info, nil
}

func (s *Store) PutQuota(account, token common.Address, info *QuotaInfo) error {
	if info == nil {
		return fmt.Errorf("credit store: nil quota")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("credit store: encode quota: %w", err)
	}
	return s.db.Put(quotaKey(account, token), raw)
}

func (s *Store) DeleteQuota(account, token common.Address) error {
	return s.db.Delete(quotaKey(account, token))
}

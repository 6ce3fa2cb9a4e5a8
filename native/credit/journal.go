package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type balanceKey struct {
	token  common.Address
	holder common.Address
}

// stateJournal buffers writes over a backing engineState so a multicall
// either commits in full or leaves no trace. Reads are copy-on-access: the
// backing records are never mutated before Commit.
type stateJournal struct {
	base engineState

	accounts        map[common.Address]*CreditAccount
	deletedAccounts map[common.Address]bool
	balances        map[balanceKey]*big.Int
	quotas          map[balanceKey]*QuotaInfo
	deletedQuotas   map[balanceKey]bool
}

func newStateJournal(base engineState) *stateJournal {
	return &stateJournal{
		base:            base,
		accounts:        make(map[common.Address]*CreditAccount),
		deletedAccounts: make(map[common.Address]bool),
		balances:        make(map[balanceKey]*big.Int),
		quotas:          make(map[balanceKey]*QuotaInfo),
		deletedQuotas:   make(map[balanceKey]bool),
	}
}

func (j *stateJournal) GetCreditAccount(addr common.Address) (*CreditAccount, error) {
	if j.deletedAccounts[addr] {
		return nil, nil
	}
	if acc, ok := j.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := j.base.GetCreditAccount(addr)
	if err != nil || acc == nil {
		return nil, err
	}
	clone := acc.Clone()
	j.accounts[addr] = clone
	return clone, nil
}

func (j *stateJournal) PutCreditAccount(addr common.Address, acc *CreditAccount) error {
	delete(j.deletedAccounts, addr)
	j.accounts[addr] = acc
	return nil
}

func (j *stateJournal) DeleteCreditAccount(addr common.Address) error {
	delete(j.accounts, addr)
	j.deletedAccounts[addr] = true
	return nil
}

func (j *stateJournal) GetBalance(token, holder common.Address) (*big.Int, error) {
	key := balanceKey{token: token, holder: holder}
	if bal, ok := j.balances[key]; ok {
		return new(big.Int).Set(bal), nil
	}
	bal, err := j.base.GetBalance(token, holder)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		bal = big.NewInt(0)
	}
	return new(big.Int).Set(bal), nil
}

func (j *stateJournal) SetBalance(token, holder common.Address, amount *big.Int) error {
	j.balances[balanceKey{token: token, holder: holder}] = new(big.Int).Set(amount)
	return nil
}

func (j *stateJournal) GetQuota(account, token common.Address) (*QuotaInfo, error) {
	key := balanceKey{token: token, holder: account}
	if j.deletedQuotas[key] {
		return nil, nil
	}
	if q, ok := j.quotas[key]; ok {
		return q, nil
	}
	q, err := j.base.GetQuota(account, token)
	if err != nil || q == nil {
		return nil, err
	}
	clone := q.Clone()
	j.quotas[key] = clone
	return clone, nil
}

func (j *stateJournal) PutQuota(account, token common.Address, info *QuotaInfo) error {
	key := balanceKey{token: token, holder: account}
	delete(j.deletedQuotas, key)
	j.quotas[key] = info
	return nil
}

func (j *stateJournal) DeleteQuota(account, token common.Address) error {
	key := balanceKey{token: token, holder: account}
	delete(j.quotas, key)
	j.deletedQuotas[key] = true
	return nil
}

// Commit writes the buffered mutations through to the backing state.
func (j *stateJournal) Commit() error {
	for addr := range j.deletedAccounts {
		if err := j.base.DeleteCreditAccount(addr); err != nil {
			return err
		}
	}
	for addr, acc := range j.accounts {
		if err := j.base.PutCreditAccount(addr, acc); err != nil {
			return err
		}
	}
	for key, bal := range j.balances {
		if err := j.base.SetBalance(key.token, key.holder, bal); err != nil {
			return err
		}
	}
	for key := range j.deletedQuotas {
		if err := j.base.DeleteQuota(key.holder, key.token); err != nil {
			return err
		}
	}
	for key, q := range j.quotas {
		if err := j.base.PutQuota(key.holder, key.token, q); err != nil {
			return err
		}
	}
	return nil
}

package credit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TableOracle is a push-style PriceOracle: governance posts RAY-scaled rates
// (underlying units per token unit) and conversions are pure table lookups,
// deterministic within a block.
type TableOracle struct {
	underlying common.Address
	rates      map[common.Address]*big.Int
}

// NewTableOracle returns an oracle that prices the underlying at par and
// everything else from posted rates.
func NewTableOracle(underlying common.Address) *TableOracle {
	return &TableOracle{
		underlying: underlying,
		rates:      make(map[common.Address]*big.Int),
	}
}

// SetRate posts a token's RAY-scaled rate. A nil or zero rate removes the
// feed.
func (o *TableOracle) SetRate(token common.Address, rate *big.Int) {
	if o == nil {
		return
	}
	if rate == nil || rate.Sign() == 0 {
		delete(o.rates, token)
		return
	}
	o.rates[token] = cloneBig(rate)
}

// Convert values an amount of token in underlying units, floored.
func (o *TableOracle) Convert(amount *big.Int, token common.Address) (*big.Int, error) {
	if token == o.underlying {
		return cloneBig(amount), nil
	}
	rate, ok := o.rates[token]
	if !ok {
		return nil, ErrPriceFeedDoesNotExist
	}
	return rayMul(amount, rate), nil
}

// HasPriceFeed reports whether the token can be valued.
func (o *TableOracle) HasPriceFeed(token common.Address) bool {
	if token == o.underlying {
		return true
	}
	_, ok := o.rates[token]
	return ok
}

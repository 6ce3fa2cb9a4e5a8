package credit

import (
	mathbits "math/bits"

	"github.com/holiman/uint256"
)

// TokenMask is a fixed-width 256-bit set of collateral token slots. Bit i is
// set when token i participates in collateral valuation for an account. Bit 0
// is reserved for the underlying token.
//
// All operations are pure value semantics over the uint256 word array; there
// is no allocation on membership tests or iteration.
type TokenMask struct {
	bits uint256.Int
}

// MaskOfBit returns a mask with exactly the given bit set.
func MaskOfBit(bit uint) TokenMask {
	var m TokenMask
	if bit < 256 {
		m.bits[bit/64] = 1 << (bit % 64)
	}
	return m
}

// UnderlyingTokenMask selects the reserved underlying slot.
var UnderlyingTokenMask = MaskOfBit(0)

// Enable returns the mask with the given bit set. Enabling an already-set bit
// is a no-op, so enablement is idempotent.
func (m TokenMask) Enable(bit uint) TokenMask {
	if bit < 256 {
		m.bits[bit/64] |= 1 << (bit % 64)
	}
	return m
}

// Disable returns the mask with the given bit cleared.
func (m TokenMask) Disable(bit uint) TokenMask {
	if bit < 256 {
		m.bits[bit/64] &^= 1 << (bit % 64)
	}
	return m
}

// Contains reports whether the given bit is set.
func (m TokenMask) Contains(bit uint) bool {
	if bit >= 256 {
		return false
	}
	return m.bits[bit/64]>>(bit%64)&1 == 1
}

// Index decodes a single-bit mask into its bit position. Masks holding zero
// or more than one set bit fail with ErrIncorrectBitMask; the caller is
// expected to be resolving a bit-to-token lookup.
func (m TokenMask) Index() (uint, error) {
	count := 0
	index := uint(0)
	for w := 0; w < 4; w++ {
		ones := mathbits.OnesCount64(m.bits[w])
		if ones == 0 {
			continue
		}
		count += ones
		if count > 1 {
			return 0, ErrIncorrectBitMask
		}
		index = uint(w*64 + mathbits.TrailingZeros64(m.bits[w]))
	}
	if count != 1 {
		return 0, ErrIncorrectBitMask
	}
	return index, nil
}

// IsZero reports whether no bit is set.
func (m TokenMask) IsZero() bool { return m.bits.IsZero() }

// Eq reports whether two masks hold the same bits.
func (m TokenMask) Eq(o TokenMask) bool { return m.bits.Eq(&o.bits) }

// Union returns the set union of both masks.
func (m TokenMask) Union(o TokenMask) TokenMask {
	var out TokenMask
	out.bits.Or(&m.bits, &o.bits)
	return out
}

// Without returns m with every bit of o cleared.
func (m TokenMask) Without(o TokenMask) TokenMask {
	var out TokenMask
	var inv uint256.Int
	inv.Not(&o.bits)
	out.bits.And(&m.bits, &inv)
	return out
}

// Intersect returns the set intersection of both masks.
func (m TokenMask) Intersect(o TokenMask) TokenMask {
	var out TokenMask
	out.bits.And(&m.bits, &o.bits)
	return out
}

// Intersects reports whether the masks share at least one bit.
func (m TokenMask) Intersects(o TokenMask) bool {
	var tmp uint256.Int
	tmp.And(&m.bits, &o.bits)
	return !tmp.IsZero()
}

// ForEach visits set bits from lowest to highest. The walk stops early when
// fn returns false, which collateral scans use to short-circuit.
func (m TokenMask) ForEach(fn func(bit uint) bool) {
	for w := 0; w < 4; w++ {
		word := m.bits[w]
		for word != 0 {
			tz := mathbits.TrailingZeros64(word)
			if !fn(uint(w*64 + tz)) {
				return
			}
			word &^= 1 << uint(tz)
		}
	}
}

// MarshalText encodes the mask as a 0x-prefixed hex string for persistence.
func (m TokenMask) MarshalText() ([]byte, error) {
	return m.bits.MarshalText()
}

// UnmarshalText decodes a mask produced by MarshalText.
func (m *TokenMask) UnmarshalText(text []byte) error {
	return m.bits.UnmarshalText(text)
}

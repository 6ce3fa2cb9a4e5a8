package credit

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HandleFactory hands out deterministic credit account addresses and recycles
// closed ones through a free list, oldest first.
type HandleFactory struct {
	next uint64
	free []common.Address
}

// NewHandleFactory returns an empty factory.
func NewHandleFactory() *HandleFactory {
	return &HandleFactory{}
}

// Open returns a handle, preferring a recycled one.
func (f *HandleFactory) Open() (common.Address, error) {
	if f == nil {
		return common.Address{}, ErrEngineNotConfigured
	}
	if n := len(f.free); n > 0 {
		handle := f.free[0]
		f.free = f.free[1:]
		return handle, nil
	}
	f.next++
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], f.next)
	sum := crypto.Keccak256([]byte("credit/account"), seq[:])
	return common.BytesToAddress(sum[12:]), nil
}

// Close returns a handle to the free list for reuse.
func (f *HandleFactory) Close(handle common.Address) {
	if f == nil || handle == (common.Address{}) || handle == sentinelAccount {
		return
	}
	f.free = append(f.free, handle)
}

// Free reports how many handles sit on the free list.
func (f *HandleFactory) Free() int {
	if f == nil {
		return 0
	}
	return len(f.free)
}

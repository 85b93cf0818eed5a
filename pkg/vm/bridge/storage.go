package bridge

import (
	"fmt"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

// loadCost is the additional per-word charge on bytes loaded by
// storage_get. The flat input charge cannot see the value size.
var loadCost = gas.Cost{PerUnit: 3}

var (
	keyParams   = []abi.Type{abi.Bytes}
	kvParams    = []abi.Type{abi.Bytes, abi.Bytes}
	bytesReturn = []abi.Type{abi.Bytes}
)

// read resolves a key through the journal overlay, falling back to the
// backend. Absent keys read as empty bytes.
func (b *Bridge) read(key []byte) ([]byte, error) {
	if v, ok := b.journal.Get(key); ok {
		return v, nil
	}
	v, err := b.backend.Get(key)
	if err != nil {
		return nil, fmt.Errorf("storage read: %w", err)
	}
	return v, nil
}

func (b *Bridge) storageGet(in []byte, m *gas.Meter) ([]byte, error) {
	args, err := abi.DecodeTuple(in, keyParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
	}
	key, _ := args[0].Bytes()
	v, err := b.read(key)
	if err != nil {
		return nil, err
	}
	if err := m.Debit(loadCost.For(len(v))); err != nil {
		return nil, err
	}
	return abi.EncodeTuple(bytesReturn, []vm.Value{vm.BytesValue(v)})
}

func (b *Bridge) storageSet(in []byte, _ *gas.Meter) ([]byte, error) {
	args, err := abi.DecodeTuple(in, kvParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
	}
	key, _ := args[0].Bytes()
	val, _ := args[1].Bytes()
	b.journal.Set(key, val)
	return nil, nil
}

func (b *Bridge) storageDel(in []byte, _ *gas.Meter) ([]byte, error) {
	args, err := abi.DecodeTuple(in, keyParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
	}
	key, _ := args[0].Bytes()
	b.journal.Set(key, nil)
	return nil, nil
}

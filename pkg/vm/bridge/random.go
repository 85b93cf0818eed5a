package bridge

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

// random yields the next 32 bytes of the execution's deterministic
// randomness stream: blake3(seed || counter), with the counter advancing
// per call. The same seed and call sequence always observe the same bytes.
func (b *Bridge) random(in []byte, _ *gas.Meter) ([]byte, error) {
	if len(in) != 0 {
		return nil, fmt.Errorf("%w: random takes no arguments", ErrExternInput)
	}
	buf := make([]byte, 0, len(b.seed)+8)
	buf = append(buf, b.seed...)
	buf = binary.BigEndian.AppendUint64(buf, b.counter)
	b.counter++
	sum := blake3.Sum256(buf)
	return abi.EncodeTuple(bytesReturn, []vm.Value{vm.BytesValue(sum[:])})
}

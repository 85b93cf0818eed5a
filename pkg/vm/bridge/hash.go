package bridge

import (
	"crypto/sha256"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

func sumSha256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func sumKeccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

func sumBlake3(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// hashSlot adapts a digest function to the slot contract: one bytes
// argument in, a 32-byte digest out.
func hashSlot(sum func([]byte) []byte) Slot {
	return func(in []byte, _ *gas.Meter) ([]byte, error) {
		args, err := abi.DecodeTuple(in, keyParams)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
		}
		data, _ := args[0].Bytes()
		return abi.EncodeTuple(bytesReturn, []vm.Value{vm.BytesValue(sum(data))})
	}
}

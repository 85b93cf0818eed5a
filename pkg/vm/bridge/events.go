package bridge

import (
	"fmt"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

func (b *Bridge) emitEvent(in []byte, _ *gas.Meter) ([]byte, error) {
	args, err := abi.DecodeTuple(in, kvParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
	}
	topic, _ := args[0].Bytes()
	data, _ := args[1].Bytes()
	b.journal.AddEvent(vm.Event{Topic: topic, Data: data})
	return nil, nil
}

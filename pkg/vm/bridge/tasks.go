package bridge

import (
	"fmt"
	"math/big"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

var (
	taskIDReturn     = []abi.Type{abi.Int}
	taskIDParams     = []abi.Type{abi.Int}
	taskResultReturn = []abi.Type{abi.Bool, abi.Bytes}
)

// taskEnqueue records a unit of deferred work and returns its id. Ids are
// assigned sequentially per execution and are not reused when the
// enqueuing frame later reverts; the host collects surviving tasks from
// the receipt.
func (b *Bridge) taskEnqueue(in []byte, _ *gas.Meter) ([]byte, error) {
	args, err := abi.DecodeTuple(in, keyParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
	}
	payload, _ := args[0].Bytes()
	id := b.nextTask
	b.nextTask++
	b.journal.AddTask(Task{ID: id, Payload: append([]byte(nil), payload...)})
	return abi.EncodeTuple(taskIDReturn, []vm.Value{vm.IntValue(new(big.Int).SetUint64(id))})
}

// taskResult reports whether a previously enqueued task has completed and,
// if so, its result bytes.
func (b *Bridge) taskResult(in []byte, _ *gas.Meter) ([]byte, error) {
	args, err := abi.DecodeTuple(in, taskIDParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternInput, err)
	}
	n, _ := args[0].Int()
	if n.Sign() < 0 || !n.IsUint64() {
		return nil, fmt.Errorf("%w: task id out of range", ErrExternInput)
	}
	res, ok := b.results[n.Uint64()]
	return abi.EncodeTuple(taskResultReturn, []vm.Value{
		vm.BoolValue(ok),
		vm.BytesValue(res),
	})
}

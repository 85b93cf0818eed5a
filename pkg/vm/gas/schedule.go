package gas

import "github.com/emberchain/ember/pkg/vm/ir"

// Reference opcode costs, version 1. Size-proportional entries carry a
// PerUnit term applied per started 32-byte word.
const (
	costBase  = uint64(2)
	costMul   = uint64(8)
	costDiv   = uint64(16)
	costJump  = uint64(2)
	costCall  = uint64(40)
	costBytes = uint64(6)
	costWord  = uint64(3)
)

// DefaultOpCosts returns the version-1 opcode cost schedule.
func DefaultOpCosts() map[ir.Opcode]Cost {
	ops := map[ir.Opcode]Cost{
		ir.OpMul:    {Base: costMul},
		ir.OpDiv:    {Base: costDiv},
		ir.OpMod:    {Base: costDiv},
		ir.OpJump:   {Base: costJump},
		ir.OpJumpI:  {Base: costJump},
		ir.OpRet:    {Base: costJump},
		ir.OpRevert: {Base: costJump},
		ir.OpCall:   {Base: costCall},
		ir.OpConcat: {Base: costBytes, PerUnit: costWord},
		ir.OpSlice:  {Base: costBytes, PerUnit: costWord},
		ir.OpI2B:    {Base: costBytes, PerUnit: costWord},
		ir.OpB2I:    {Base: costBytes, PerUnit: costWord},
	}
	// Everything else is a flat base-cost step.
	for op := 0; op < 256; op++ {
		o := ir.Opcode(op)
		if !o.Valid() {
			continue
		}
		if _, ok := ops[o]; !ok {
			ops[o] = Cost{Base: costBase}
		}
	}
	return ops
}

// NewTable builds a cost table. The table must not be mutated after it has
// been handed to an interpreter.
func NewTable(version uint32, ops map[ir.Opcode]Cost, externs map[uint32]Cost) *Table {
	return &Table{Version: version, Ops: ops, Externs: externs}
}

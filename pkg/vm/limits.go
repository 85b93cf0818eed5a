package vm

import "errors"

// ErrLimitZero is returned when a limit field is left unset.
var ErrLimitZero = errors.New("limit must be positive")

// Limits holds every configurable resource cap of the machine. All caps are
// explicit configuration: the engine and validator never hardcode them, and
// a zero value is rejected rather than defaulted silently.
type Limits struct {
	// MaxConsts caps the constant pool size of a module.
	MaxConsts int

	// MaxFuncs caps the number of functions in a module.
	MaxFuncs int

	// MaxBlocks caps the number of blocks per function.
	MaxBlocks int

	// MaxBlockInstrs caps the instruction count of a single block.
	MaxBlockInstrs int

	// MaxStackHeight caps the operand stack height of one frame.
	MaxStackHeight int

	// MaxCallDepth caps the call-graph height, and therefore the frame
	// stack depth at runtime.
	MaxCallDepth int

	// MaxIntBits caps the magnitude of every integer value; results wider
	// than this fault.
	MaxIntBits int

	// MaxShift caps shift amounts for SHL/SHR.
	MaxShift int

	// MaxBytesLen caps the length of any bytes value, including CONCAT
	// results.
	MaxBytesLen int

	// MaxTupleLen caps the arity of tuple constants.
	MaxTupleLen int

	// MaxParams caps function parameter and return arity.
	MaxParams int
}

// DefaultLimits returns the reference cap configuration.
func DefaultLimits() Limits {
	return Limits{
		MaxConsts:      4096,
		MaxFuncs:       1024,
		MaxBlocks:      1024,
		MaxBlockInstrs: 4096,
		MaxStackHeight: 1024,
		MaxCallDepth:   64,
		MaxIntBits:     256,
		MaxShift:       256,
		MaxBytesLen:    1 << 20,
		MaxTupleLen:    8,
		MaxParams:      16,
	}
}

// Check verifies that every cap is positive.
func (l Limits) Check() error {
	for _, v := range []int{
		l.MaxConsts, l.MaxFuncs, l.MaxBlocks, l.MaxBlockInstrs,
		l.MaxStackHeight, l.MaxCallDepth, l.MaxIntBits, l.MaxShift,
		l.MaxBytesLen, l.MaxTupleLen, l.MaxParams,
	} {
		if v <= 0 {
			return ErrLimitZero
		}
	}
	return nil
}

package interp

import (
	"fmt"

	"github.com/emberchain/ember/pkg/vm"
)

// Status is the terminal state of one execution.
type Status uint8

const (
	// StatusOK means the entry function returned normally.
	StatusOK Status = iota

	// StatusRevert means the contract explicitly aborted. The reason
	// bytes are preserved; nested pending effects are discarded.
	StatusRevert

	// StatusOutOfGas means the meter was exhausted. The meter reads
	// empty and the failing operation never took effect.
	StatusOutOfGas

	// StatusFault means the contract hit an unrecoverable condition:
	// a kind mismatch, division by zero, an out-of-range operand, or a
	// failing extern.
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRevert:
		return "revert"
	case StatusOutOfGas:
		return "out of gas"
	case StatusFault:
		return "fault"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// FaultKind narrows a StatusFault outcome.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultKindMismatch
	FaultDivZero
	FaultCap
	FaultRange
	FaultExtern
	FaultInternal
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultKindMismatch:
		return "kind mismatch"
	case FaultDivZero:
		return "division by zero"
	case FaultCap:
		return "value over cap"
	case FaultRange:
		return "operand out of range"
	case FaultExtern:
		return "extern failure"
	case FaultInternal:
		return "internal fault"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Outcome is the result of one execution. Returns is set on StatusOK,
// Revert on StatusRevert, Fault on StatusFault. Gas accounting lives on
// the meter the caller supplied.
type Outcome struct {
	Status  Status
	Fault   FaultKind
	Returns []vm.Value
	Revert  []byte
}


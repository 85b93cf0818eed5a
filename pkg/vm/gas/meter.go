// Package gas implements deterministic gas metering: a per-execution meter
// and the versioned cost table it debits against.
//
// The single rule that matters is debit-before-effect: the meter is charged
// for a step, and the charge must succeed, strictly before that step's
// effect happens. Out-of-gas can therefore never leave a half-applied
// effect behind.
package gas

import "errors"

// ErrOutOfGas is returned by Debit when the budget is exhausted.
var ErrOutOfGas = errors.New("out of gas")

// Meter tracks gas consumption for one top-level execution. It is not safe
// for concurrent use; every execution owns its own meter.
type Meter struct {
	limit     uint64
	remaining uint64
	refund    uint64
}

// NewMeter creates a meter with the given budget.
func NewMeter(limit uint64) *Meter {
	return &Meter{limit: limit, remaining: limit}
}

// Debit consumes n units. On failure the meter is drained to zero and
// ErrOutOfGas is returned; the caller must not perform the effect the
// debit was paying for.
func (m *Meter) Debit(n uint64) error {
	if m.remaining < n {
		m.remaining = 0
		return ErrOutOfGas
	}
	m.remaining -= n
	return nil
}

// Refund records a refund hint. Hints are surfaced to the embedding caller
// after finalization; bounding and applying them is the caller's policy,
// not the meter's.
func (m *Meter) Refund(n uint64) {
	m.refund += n
}

// Remaining returns the unspent budget.
func (m *Meter) Remaining() uint64 {
	return m.remaining
}

// Used returns the gas consumed so far.
func (m *Meter) Used() uint64 {
	return m.limit - m.remaining
}

// Limit returns the original budget.
func (m *Meter) Limit() uint64 {
	return m.limit
}

// RefundHint returns the accumulated refund hint.
func (m *Meter) RefundHint() uint64 {
	return m.refund
}

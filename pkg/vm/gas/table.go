package gas

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/emberchain/ember/pkg/vm/ir"
)

// WordSize is the unit of size-proportional charging, in bytes.
const WordSize = 32

// Cost is one cost-table entry. The charge for a step of byte size s is
// Base + PerUnit*ceil(s/WordSize); fixed-cost steps have PerUnit zero.
type Cost struct {
	Base    uint64 `json:"base"`
	PerUnit uint64 `json:"per_unit"`
}

// For returns the charge for a step of the given byte size.
func (c Cost) For(size int) uint64 {
	if size <= 0 || c.PerUnit == 0 {
		return c.Base
	}
	words := (uint64(size) + WordSize - 1) / WordSize
	return c.Base + c.PerUnit*words
}

var (
	// ErrUnknownOp is returned when the table has no entry for an opcode.
	ErrUnknownOp = errors.New("no cost entry for opcode")

	// ErrUnknownExtern is returned when the table has no entry for an
	// extern id.
	ErrUnknownExtern = errors.New("no cost entry for extern")
)

// Table is an injected, versioned cost table. It is immutable once
// constructed and shared read-only across executions; the version and
// checksum are exposed for audit.
type Table struct {
	Version uint32
	Ops     map[ir.Opcode]Cost
	Externs map[uint32]Cost
}

// OpCost returns the charge for executing op on a step of byte size.
func (t *Table) OpCost(op ir.Opcode, size int) (uint64, error) {
	c, ok := t.Ops[op]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownOp, op)
	}
	return c.For(size), nil
}

// ExternCost returns the charge for invoking extern eid with an input
// payload of the given byte size.
func (t *Table) ExternCost(eid uint32, size int) (uint64, error) {
	c, ok := t.Externs[eid]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownExtern, eid)
	}
	return c.For(size), nil
}

// Checksum returns a blake3 digest over the table in a canonical byte
// order, so two parties can verify they run identical cost schedules.
func (t *Table) Checksum() [32]byte {
	h := blake3.New()
	var buf [8]byte

	binary.BigEndian.PutUint32(buf[:4], t.Version)
	h.Write(buf[:4])

	ops := make([]int, 0, len(t.Ops))
	for op := range t.Ops {
		ops = append(ops, int(op))
	}
	sort.Ints(ops)
	for _, op := range ops {
		c := t.Ops[ir.Opcode(op)]
		buf[0] = byte(op)
		h.Write(buf[:1])
		binary.BigEndian.PutUint64(buf[:], c.Base)
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], c.PerUnit)
		h.Write(buf[:])
	}

	eids := make([]int, 0, len(t.Externs))
	for eid := range t.Externs {
		eids = append(eids, int(eid))
	}
	sort.Ints(eids)
	for _, eid := range eids {
		c := t.Externs[uint32(eid)]
		binary.BigEndian.PutUint32(buf[:4], uint32(eid))
		h.Write(buf[:4])
		binary.BigEndian.PutUint64(buf[:], c.Base)
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], c.PerUnit)
		h.Write(buf[:])
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// MarshalJSON implements the external table format: opcode keys use
// mnemonics so schedules are reviewable.
func (t *Table) MarshalJSON() ([]byte, error) {
	type wire struct {
		Version uint32          `json:"version"`
		Ops     map[string]Cost `json:"ops"`
		Externs map[string]Cost `json:"externs"`
	}
	w := wire{
		Version: t.Version,
		Ops:     make(map[string]Cost, len(t.Ops)),
		Externs: make(map[string]Cost, len(t.Externs)),
	}
	for op, c := range t.Ops {
		w.Ops[op.String()] = c
	}
	for eid, c := range t.Externs {
		w.Externs[fmt.Sprintf("%d", eid)] = c
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the external table format.
func (t *Table) UnmarshalJSON(data []byte) error {
	type wire struct {
		Version uint32          `json:"version"`
		Ops     map[string]Cost `json:"ops"`
		Externs map[string]Cost `json:"externs"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Version = w.Version
	t.Ops = make(map[ir.Opcode]Cost, len(w.Ops))
	t.Externs = make(map[uint32]Cost, len(w.Externs))
	byName := make(map[string]ir.Opcode)
	for op := 0; op < 256; op++ {
		if ir.Opcode(op).Valid() {
			byName[ir.Opcode(op).String()] = ir.Opcode(op)
		}
	}
	for name, c := range w.Ops {
		op, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOp, name)
		}
		t.Ops[op] = c
	}
	for key, c := range w.Externs {
		var eid uint32
		if _, err := fmt.Sscanf(key, "%d", &eid); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownExtern, key)
		}
		t.Externs[eid] = c
	}
	return nil
}

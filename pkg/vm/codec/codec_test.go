package codec

import (
	"errors"
	"math/big"
	"testing"

	"github.com/emberchain/ember/pkg/vm/ir"
)

func sampleModule() *ir.Module {
	ep := uint32(1)
	return &ir.Module{
		Version: ir.Version,
		Consts: []ir.Const{
			ir.IntConst(42),
			ir.BigConst(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100))),
			ir.BytesConst([]byte("hello")),
			ir.TupleConst(ir.IntConst(1), ir.BytesConst([]byte{0xff})),
		},
		Funcs: []ir.Func{
			{
				ID: 1, ParamCount: 2, ReturnCount: 1,
				Blocks: []ir.Block{
					{Label: 0, Code: []ir.Instr{
						{Op: ir.OpAdd},
						{Op: ir.OpRet},
					}},
				},
			},
			{
				ID: 5, ParamCount: 0, ReturnCount: 0,
				Blocks: []ir.Block{
					{Label: 0, Code: []ir.Instr{
						{Op: ir.OpJump, A: 3},
					}},
					{Label: 3, Code: []ir.Instr{
						{Op: ir.OpRet},
					}},
				},
			},
		},
		Entrypoint: &ep,
	}
}

// TestRoundTrip tests that decode(encode(m)) reproduces the module exactly.
func TestRoundTrip(t *testing.T) {
	m := sampleModule()
	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Equal(m) {
		t.Errorf("decoded module differs from original")
	}

	// The encoding is canonical: re-encoding must be byte-identical.
	raw2, err := Encode(got)
	if err != nil {
		t.Fatalf("re-Encode failed: %v", err)
	}
	if string(raw) != string(raw2) {
		t.Errorf("re-encoded bytes differ")
	}
}

// TestRoundTripNoEntrypoint tests the optional entrypoint flag.
func TestRoundTripNoEntrypoint(t *testing.T) {
	m := sampleModule()
	m.Entrypoint = nil
	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Entrypoint != nil {
		t.Errorf("Entrypoint = %d, want none", *got.Entrypoint)
	}
}

// TestBadMagic tests header rejection.
func TestBadMagic(t *testing.T) {
	raw, _ := Encode(sampleModule())
	raw[0] = 'X'
	if _, err := Decode(raw); !errors.Is(err, ErrBadMagic) {
		t.Errorf("Decode(bad magic) = %v, want ErrBadMagic", err)
	}
	if _, err := Decode([]byte{'E', 'M'}); !errors.Is(err, ErrBadMagic) {
		t.Errorf("Decode(short) = %v, want ErrBadMagic", err)
	}
}

// TestBadVersion tests version rejection.
func TestBadVersion(t *testing.T) {
	raw := append([]byte(nil), Magic...)
	raw = AppendUvarint(raw, 99)
	if _, err := Decode(raw); !errors.Is(err, ErrVersion) {
		t.Errorf("Decode(version 99) = %v, want ErrVersion", err)
	}
}

// TestTrailingBytes tests that extra bytes after the module are rejected.
func TestTrailingBytes(t *testing.T) {
	raw, _ := Encode(sampleModule())
	raw = append(raw, 0x00)
	if _, err := Decode(raw); !errors.Is(err, ErrTrailing) {
		t.Errorf("Decode(trailing) = %v, want ErrTrailing", err)
	}
}

// TestTruncatedInput tests that cutting the blob anywhere fails.
func TestTruncatedInput(t *testing.T) {
	raw, _ := Encode(sampleModule())
	for i := len(Magic); i < len(raw); i++ {
		if _, err := Decode(raw[:i]); err == nil {
			t.Errorf("Decode(raw[:%d]) succeeded, want error", i)
		}
	}
}

// TestFuncOrder tests that out-of-order function ids are rejected on both
// paths.
func TestFuncOrder(t *testing.T) {
	m := sampleModule()
	m.Funcs[0].ID, m.Funcs[1].ID = 5, 1
	if _, err := Encode(m); !errors.Is(err, ErrOrder) {
		t.Errorf("Encode(out of order) = %v, want ErrOrder", err)
	}
}

// TestBlockOrder tests that out-of-order block labels are rejected.
func TestBlockOrder(t *testing.T) {
	m := sampleModule()
	m.Funcs[1].Blocks[0].Label, m.Funcs[1].Blocks[1].Label = 3, 0
	if _, err := Encode(m); !errors.Is(err, ErrOrder) {
		t.Errorf("Encode(block order) = %v, want ErrOrder", err)
	}
}

// TestNestedTupleRejected tests the tuple nesting restriction.
func TestNestedTupleRejected(t *testing.T) {
	m := sampleModule()
	m.Consts = append(m.Consts, ir.TupleConst(ir.TupleConst(ir.IntConst(1))))
	if _, err := Encode(m); !errors.Is(err, ErrBadConst) {
		t.Errorf("Encode(nested tuple) = %v, want ErrBadConst", err)
	}
}

// TestHostileCount tests that a huge count prefix cannot force a large
// allocation.
func TestHostileCount(t *testing.T) {
	raw := append([]byte(nil), Magic...)
	raw = AppendUvarint(raw, ir.Version)
	raw = AppendUvarint(raw, 1<<40) // const count far past remaining input
	if _, err := Decode(raw); !errors.Is(err, ErrLength) {
		t.Errorf("Decode(hostile count) = %v, want ErrLength", err)
	}
}

// TestUnknownOpcode tests instruction decoding rejection.
func TestUnknownOpcode(t *testing.T) {
	m := sampleModule()
	raw, _ := Encode(m)
	// Locate the ADD opcode byte and corrupt it.
	for i := range raw {
		if raw[i] == byte(ir.OpAdd) && i > len(Magic) {
			raw[i] = 0xee
			break
		}
	}
	if _, err := Decode(raw); err == nil {
		t.Errorf("Decode(corrupt opcode) succeeded, want error")
	}
}

// TestNegativeIntConst tests zigzag round-trip of negative constants.
func TestNegativeIntConst(t *testing.T) {
	m := &ir.Module{
		Version: ir.Version,
		Consts:  []ir.Const{ir.IntConst(-1), ir.IntConst(-1 << 62)},
		Funcs: []ir.Func{
			{ID: 0, Blocks: []ir.Block{{Label: 0, Code: []ir.Instr{{Op: ir.OpRet}}}}},
		},
	}
	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Consts[0].Int.Int64() != -1 || got.Consts[1].Int.Int64() != -1<<62 {
		t.Errorf("negative consts = %s, %s", got.Consts[0].Int, got.Consts[1].Int)
	}
}

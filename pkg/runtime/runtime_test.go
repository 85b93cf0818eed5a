package runtime

import (
	"errors"
	"math/big"
	"testing"

	"github.com/emberchain/ember/pkg/state"
	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/bridge"
	"github.com/emberchain/ember/pkg/vm/codec"
	"github.com/emberchain/ember/pkg/vm/interp"
	"github.com/emberchain/ember/pkg/vm/ir"
)

// counterModule is a persistent counter:
//
//	bump(key bytes) -> int   reads the counter, increments, stores, returns
//	fail(key bytes)          writes a marker under key, then reverts
//	note(key bytes) -> int   bump plus a "bump" event carrying the new value
func counterModule() (*ir.Module, *abi.Manifest) {
	m := &ir.Module{
		Version: ir.Version,
		Consts: []ir.Const{
			ir.IntConst(1),
			ir.BytesConst([]byte("marker")),
			ir.BytesConst([]byte("nope")),
			ir.BytesConst([]byte("bump")),
		},
		Funcs: []ir.Func{
			// bump: [key]
			{ID: 0, ParamCount: 1, ReturnCount: 1,
				Blocks: []ir.Block{{Label: 0, Code: []ir.Instr{
					{Op: ir.OpDup},                                         // key key
					{Op: ir.OpCallExtern, A: bridge.ExternStorageGet, B: 1}, // key val
					{Op: ir.OpB2I},                                         // key n
					{Op: ir.OpPushConst, A: 0},                             // key n 1
					{Op: ir.OpAdd},                                         // key n1
					{Op: ir.OpDup},                                         // key n1 n1
					{Op: ir.OpPick, A: 2},                                  // key n1 n1 key
					{Op: ir.OpSwap},                                        // key n1 key n1
					{Op: ir.OpI2B},                                         // key n1 key bytes
					{Op: ir.OpCallExtern, A: bridge.ExternStorageSet, B: 2}, // key n1
					{Op: ir.OpSwap},                                        // n1 key
					{Op: ir.OpPop},                                         // n1
					{Op: ir.OpRet},
				}}}},
			// fail: [key]
			{ID: 1, ParamCount: 1, ReturnCount: 0,
				Blocks: []ir.Block{{Label: 0, Code: []ir.Instr{
					{Op: ir.OpPushConst, A: 1},
					{Op: ir.OpCallExtern, A: bridge.ExternStorageSet, B: 2},
					{Op: ir.OpPushConst, A: 2},
					{Op: ir.OpRevert},
				}}}},
			// note: [key]
			{ID: 2, ParamCount: 1, ReturnCount: 1,
				Blocks: []ir.Block{{Label: 0, Code: []ir.Instr{
					{Op: ir.OpDup},                                          // key key
					{Op: ir.OpCallExtern, A: bridge.ExternStorageGet, B: 1}, // key val
					{Op: ir.OpB2I},                                          // key n
					{Op: ir.OpPushConst, A: 0},                              // key n 1
					{Op: ir.OpAdd},                                          // key n1
					{Op: ir.OpDup},                                          // key n1 n1
					{Op: ir.OpPick, A: 2},                                   // key n1 n1 key
					{Op: ir.OpSwap},                                         // key n1 key n1
					{Op: ir.OpI2B},                                          // key n1 key bytes
					{Op: ir.OpCallExtern, A: bridge.ExternStorageSet, B: 2}, // key n1
					{Op: ir.OpPushConst, A: 3},                              // key n1 topic
					{Op: ir.OpPick, A: 1},                                   // key n1 topic n1
					{Op: ir.OpI2B},                                          // key n1 topic bytes
					{Op: ir.OpCallExtern, A: bridge.ExternEmitEvent, B: 2},  // key n1
					{Op: ir.OpSwap},                                         // n1 key
					{Op: ir.OpPop},                                          // n1
					{Op: ir.OpRet},
				}}}},
		},
	}
	man := &abi.Manifest{Functions: []abi.Function{
		{Name: "bump", FuncID: 0, Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Int}},
		{Name: "fail", FuncID: 1, Params: []abi.Type{abi.Bytes}},
		{Name: "note", FuncID: 2, Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Int}},
	}}
	return m, man
}

func newRuntime(t *testing.T) (*Runtime, *state.MemoryStore, *abi.Manifest) {
	t.Helper()
	m, man := counterModule()
	store := state.NewMemory()
	rt, err := LoadModule(m, man, store, Config{})
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	return rt, store, man
}

func callPayload(t *testing.T, man *abi.Manifest, name string, args ...vm.Value) []byte {
	t.Helper()
	for i := range man.Functions {
		f := &man.Functions[i]
		if f.Name == name {
			p, err := abi.EncodeCall(f.Selector(), f.Params, args)
			if err != nil {
				t.Fatalf("EncodeCall failed: %v", err)
			}
			return p
		}
	}
	t.Fatalf("function %q not in manifest", name)
	return nil
}

func ctx() CallContext {
	return CallContext{GasLimit: 1 << 20, Seed: []byte("test-seed")}
}

// TestCallBump tests a successful call end to end, including persistence
// across calls.
func TestCallBump(t *testing.T) {
	rt, store, man := newRuntime(t)
	key := vm.BytesValue([]byte("hits"))

	rcpt, err := rt.Call(callPayload(t, man, "bump", key), ctx())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if rcpt.Status != interp.StatusOK {
		t.Fatalf("Status = %s, want ok", rcpt.Status)
	}
	if rcpt.GasUsed == 0 {
		t.Errorf("GasUsed = 0, want > 0")
	}
	rets, err := abi.DecodeReturn(rcpt.Data, []abi.Type{abi.Int})
	if err != nil {
		t.Fatalf("DecodeReturn failed: %v", err)
	}
	if n, _ := rets[0].Int(); n.Int64() != 1 {
		t.Errorf("bump = %s, want 1", n)
	}

	// The write was applied: a second call sees it.
	rcpt, err = rt.Call(callPayload(t, man, "bump", key), ctx())
	if err != nil {
		t.Fatalf("second Call failed: %v", err)
	}
	rets, _ = abi.DecodeReturn(rcpt.Data, []abi.Type{abi.Int})
	if n, _ := rets[0].Int(); n.Int64() != 2 {
		t.Errorf("second bump = %s, want 2", n)
	}

	if v, _ := store.Get([]byte("hits")); len(v) != 1 || v[0] != 2 {
		t.Errorf("stored counter = %x, want 02", v)
	}
}

// TestCallExactGas tests that GasUsed is exactly the sum of the table
// charges along the executed path, and that the bump event lands on the
// receipt.
func TestCallExactGas(t *testing.T) {
	rt, store, man := newRuntime(t)
	key := []byte("counter")

	rcpt, err := rt.Call(callPayload(t, man, "note", vm.BytesValue(key)), ctx())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if rcpt.Status != interp.StatusOK {
		t.Fatalf("Status = %s, want ok", rcpt.Status)
	}

	tbl := DefaultCostTable()
	op := func(o ir.Opcode, size int) uint64 {
		c, err := tbl.OpCost(o, size)
		if err != nil {
			t.Fatalf("OpCost(%s) failed: %v", o, err)
		}
		return c
	}
	ext := func(id uint32, params []abi.Type, args ...vm.Value) uint64 {
		in, err := abi.EncodeTuple(params, args)
		if err != nil {
			t.Fatalf("EncodeTuple failed: %v", err)
		}
		c, err := tbl.ExternCost(id, len(in))
		if err != nil {
			t.Fatalf("ExternCost(%d) failed: %v", id, err)
		}
		return c
	}
	keyV := vm.BytesValue(key)
	newV := vm.BytesValue([]byte{1})
	topicV := vm.BytesValue([]byte("bump"))
	keyT := []abi.Type{abi.Bytes}
	kvT := []abi.Type{abi.Bytes, abi.Bytes}

	// The charges along note's path on an empty store. storage_get's
	// per-word load surcharge is zero here: the missing key loads as
	// empty bytes.
	want := op(ir.OpDup, 0) +
		ext(bridge.ExternStorageGet, keyT, keyV) +
		op(ir.OpB2I, 0) + // loaded value is empty
		op(ir.OpPushConst, 0) +
		op(ir.OpAdd, 0) +
		op(ir.OpDup, 0) +
		op(ir.OpPick, 0) +
		op(ir.OpSwap, 0) +
		op(ir.OpI2B, 1) + // 1 encodes in one byte
		ext(bridge.ExternStorageSet, kvT, keyV, newV) +
		op(ir.OpPushConst, 0) +
		op(ir.OpPick, 0) +
		op(ir.OpI2B, 1) +
		ext(bridge.ExternEmitEvent, kvT, topicV, newV) +
		op(ir.OpSwap, 0) +
		op(ir.OpPop, 0) +
		op(ir.OpRet, 0)

	if rcpt.GasUsed != want {
		t.Errorf("GasUsed = %d, want %d", rcpt.GasUsed, want)
	}
	if rcpt.RefundHint != 0 {
		t.Errorf("RefundHint = %d, want 0", rcpt.RefundHint)
	}

	if len(rcpt.Events) != 1 {
		t.Fatalf("Events = %d, want 1", len(rcpt.Events))
	}
	ev := rcpt.Events[0]
	if string(ev.Topic) != "bump" || len(ev.Data) != 1 || ev.Data[0] != 1 {
		t.Errorf("event = %q/%x, want bump/01", ev.Topic, ev.Data)
	}
	if v, _ := store.Get(key); len(v) != 1 || v[0] != 1 {
		t.Errorf("stored counter = %x, want 01", v)
	}
}

// TestCallRevert tests the revert receipt and effect application: the
// top-level write made before the revert survives.
func TestCallRevert(t *testing.T) {
	rt, store, man := newRuntime(t)

	rcpt, err := rt.Call(callPayload(t, man, "fail", vm.BytesValue([]byte("flag"))), ctx())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if rcpt.Status != interp.StatusRevert {
		t.Fatalf("Status = %s, want revert", rcpt.Status)
	}
	if string(rcpt.Data) != "nope" {
		t.Errorf("revert reason = %q, want nope", rcpt.Data)
	}
	if v, _ := store.Get([]byte("flag")); string(v) != "marker" {
		t.Errorf("top-level write = %q, want marker", v)
	}
}

// TestCallOutOfGas tests the exhaustion receipt.
func TestCallOutOfGas(t *testing.T) {
	rt, _, man := newRuntime(t)
	rcpt, err := rt.Call(callPayload(t, man, "bump", vm.BytesValue([]byte("k"))),
		CallContext{GasLimit: 3})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if rcpt.Status != interp.StatusOutOfGas {
		t.Fatalf("Status = %s, want out of gas", rcpt.Status)
	}
	if rcpt.GasUsed != 3 {
		t.Errorf("GasUsed = %d, want the full limit", rcpt.GasUsed)
	}
}

// TestUnknownSelector tests dispatch failure.
func TestUnknownSelector(t *testing.T) {
	rt, _, _ := newRuntime(t)
	payload := make([]byte, abi.SelectorSize)
	if _, err := rt.Call(payload, ctx()); err == nil {
		t.Errorf("Call(unknown selector) succeeded, want error")
	}
}

// TestDeterministicReplay tests that identical inputs yield identical
// receipts on fresh state.
func TestDeterministicReplay(t *testing.T) {
	run := func() *Receipt {
		rt, _, man := newRuntime(t)
		rcpt, err := rt.Call(callPayload(t, man, "bump", vm.BytesValue([]byte("k"))), ctx())
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		return rcpt
	}
	a, b := run(), run()
	if a.GasUsed != b.GasUsed {
		t.Errorf("GasUsed differs: %d vs %d", a.GasUsed, b.GasUsed)
	}
	if string(a.Data) != string(b.Data) {
		t.Errorf("Data differs: %x vs %x", a.Data, b.Data)
	}
}

// TestCallRejectsWideArg tests that call arguments wider than the value
// cap are refused before execution: the ABI byte-length bound alone
// admits integers the machine would never compute.
func TestCallRejectsWideArg(t *testing.T) {
	m := &ir.Module{
		Version: ir.Version,
		Funcs: []ir.Func{
			{ID: 0, ParamCount: 1, ReturnCount: 1,
				Blocks: []ir.Block{{Label: 0, Code: []ir.Instr{
					{Op: ir.OpRet},
				}}}},
		},
	}
	man := &abi.Manifest{Functions: []abi.Function{
		{Name: "echo", FuncID: 0, Params: []abi.Type{abi.Int}, Returns: []abi.Type{abi.Int}},
	}}
	rt, err := LoadModule(m, man, state.NewMemory(), Config{})
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}

	wide := new(big.Int).Lsh(big.NewInt(1), 270)
	_, err = rt.Call(callPayload(t, man, "echo", vm.IntValue(wide)), ctx())
	if !errors.Is(err, interp.ErrArgRange) {
		t.Errorf("Call(270-bit arg) = %v, want ErrArgRange", err)
	}

	rcpt, err := rt.Call(callPayload(t, man, "echo", vm.Int64Value(7)), ctx())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	rets, err := abi.DecodeReturn(rcpt.Data, []abi.Type{abi.Int})
	if err != nil {
		t.Fatalf("DecodeReturn failed: %v", err)
	}
	if n, _ := rets[0].Int(); n.Int64() != 7 {
		t.Errorf("echo = %s, want 7", n)
	}
}

// TestLoadRejectsInvalid tests that Load refuses modules that fail
// validation or decoding.
func TestLoadRejectsInvalid(t *testing.T) {
	store := state.NewMemory()

	if _, err := Load([]byte("garbage"), nil, store, Config{}); err == nil {
		t.Errorf("Load(garbage) succeeded, want error")
	}

	// Structurally valid encoding, but the function body underflows.
	m := &ir.Module{
		Version: ir.Version,
		Funcs: []ir.Func{
			{ID: 0, ParamCount: 0, ReturnCount: 0,
				Blocks: []ir.Block{{Label: 0, Code: []ir.Instr{
					{Op: ir.OpPop},
					{Op: ir.OpRet},
				}}}},
		},
	}
	raw, err := codec.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Load(raw, nil, store, Config{}); err == nil {
		t.Errorf("Load(underflowing module) succeeded, want error")
	}
}

// TestExecuteDirect tests the manifest-free execution path.
func TestExecuteDirect(t *testing.T) {
	m, _ := counterModule()
	store := state.NewMemory()
	rt, err := LoadModule(m, nil, store, Config{})
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	rcpt, rets, err := rt.Execute(0, []vm.Value{vm.BytesValue([]byte("n"))}, ctx())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if rcpt.Status != interp.StatusOK {
		t.Fatalf("Status = %s, want ok", rcpt.Status)
	}
	if n, _ := rets[0].Int(); n.Int64() != 1 {
		t.Errorf("result = %s, want 1", n)
	}

	// ABI dispatch is unavailable without a manifest.
	if _, err := rt.Call(make([]byte, abi.SelectorSize), ctx()); err != ErrNoManifest {
		t.Errorf("Call without manifest = %v, want ErrNoManifest", err)
	}
}

package bridge

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

// mapBackend is a minimal Backend for tests.
type mapBackend map[string][]byte

func (b mapBackend) Get(key []byte) ([]byte, error) {
	return b[string(key)], nil
}

func meter() *gas.Meter {
	return gas.NewMeter(1 << 20)
}

func encodeArgs(t *testing.T, ts []abi.Type, vs []vm.Value) []byte {
	t.Helper()
	raw, err := abi.EncodeTuple(ts, vs)
	if err != nil {
		t.Fatalf("EncodeTuple failed: %v", err)
	}
	return raw
}

func bytesArg(t *testing.T, b []byte) []byte {
	return encodeArgs(t, []abi.Type{abi.Bytes}, []vm.Value{vm.BytesValue(b)})
}

func decodeBytes(t *testing.T, out []byte) []byte {
	t.Helper()
	vs, err := abi.DecodeTuple(out, []abi.Type{abi.Bytes})
	if err != nil {
		t.Fatalf("DecodeTuple failed: %v", err)
	}
	b, _ := vs[0].Bytes()
	return b
}

// TestJournalLayers tests push/commit/discard semantics.
func TestJournalLayers(t *testing.T) {
	j := NewJournal()
	if j.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", j.Depth())
	}

	j.Set([]byte("a"), []byte("1"))
	j.Push()
	j.Set([]byte("b"), []byte("2"))
	j.AddEvent(vm.Event{Topic: []byte("nested")})

	// Nested values are visible through the overlay.
	if v, ok := j.Get([]byte("b")); !ok || string(v) != "2" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}

	// Discarding drops the nested layer entirely.
	j.DiscardOpen()
	if _, ok := j.Get([]byte("b")); ok {
		t.Errorf("Get(b) after discard succeeded, want miss")
	}
	if len(j.Events()) != 0 {
		t.Errorf("Events() after discard = %d, want 0", len(j.Events()))
	}
	if v, ok := j.Get([]byte("a")); !ok || string(v) != "1" {
		t.Errorf("Get(a) = %q, %v, want bottom-layer write kept", v, ok)
	}

	// Committing merges writes and appends events in order.
	j.AddEvent(vm.Event{Topic: []byte("first")})
	j.Push()
	j.Set([]byte("a"), []byte("override"))
	j.AddEvent(vm.Event{Topic: []byte("second")})
	j.Commit()
	if v, _ := j.Get([]byte("a")); string(v) != "override" {
		t.Errorf("Get(a) after commit = %q, want override", v)
	}
	evs := j.Events()
	if len(evs) != 2 || string(evs[0].Topic) != "first" || string(evs[1].Topic) != "second" {
		t.Errorf("Events() = %v, want first,second", evs)
	}
}

// TestJournalWritesSorted tests deterministic write ordering.
func TestJournalWritesSorted(t *testing.T) {
	j := NewJournal()
	j.Set([]byte("z"), []byte("1"))
	j.Set([]byte("a"), []byte("2"))
	j.Set([]byte("m"), []byte("3"))
	w := j.Writes()
	if len(w) != 3 || string(w[0].Key) != "a" || string(w[1].Key) != "m" || string(w[2].Key) != "z" {
		t.Errorf("Writes() order = %v, want a,m,z", w)
	}
}

// TestStorageSlots tests get/set/del through the slot vector.
func TestStorageSlots(t *testing.T) {
	backend := mapBackend{"persisted": []byte("old")}
	b := New(backend, Config{})

	// Absent keys read as empty bytes.
	out, err := b.Invoke(ExternStorageGet, bytesArg(t, []byte("missing")), meter())
	if err != nil {
		t.Fatalf("storage_get failed: %v", err)
	}
	if len(decodeBytes(t, out)) != 0 {
		t.Errorf("get(missing) = %q, want empty", decodeBytes(t, out))
	}

	// Backend values shine through until overwritten.
	out, _ = b.Invoke(ExternStorageGet, bytesArg(t, []byte("persisted")), meter())
	if string(decodeBytes(t, out)) != "old" {
		t.Errorf("get(persisted) = %q, want old", decodeBytes(t, out))
	}

	// A set is visible to a following get without touching the backend.
	setIn := encodeArgs(t, []abi.Type{abi.Bytes, abi.Bytes},
		[]vm.Value{vm.BytesValue([]byte("persisted")), vm.BytesValue([]byte("new"))})
	if _, err := b.Invoke(ExternStorageSet, setIn, meter()); err != nil {
		t.Fatalf("storage_set failed: %v", err)
	}
	out, _ = b.Invoke(ExternStorageGet, bytesArg(t, []byte("persisted")), meter())
	if string(decodeBytes(t, out)) != "new" {
		t.Errorf("get after set = %q, want new", decodeBytes(t, out))
	}
	if string(backend["persisted"]) != "old" {
		t.Errorf("backend mutated before apply")
	}

	// Delete reads back as empty.
	if _, err := b.Invoke(ExternStorageDel, bytesArg(t, []byte("persisted")), meter()); err != nil {
		t.Fatalf("storage_del failed: %v", err)
	}
	out, _ = b.Invoke(ExternStorageGet, bytesArg(t, []byte("persisted")), meter())
	if len(decodeBytes(t, out)) != 0 {
		t.Errorf("get after del = %q, want empty", decodeBytes(t, out))
	}
}

// TestHashSlots tests the three digest externs against known answers.
func TestHashSlots(t *testing.T) {
	b := New(mapBackend{}, Config{})
	input := []byte("ember")

	out, err := b.Invoke(ExternSha256, bytesArg(t, input), meter())
	if err != nil {
		t.Fatalf("sha256 failed: %v", err)
	}
	want := sha256.Sum256(input)
	if !bytes.Equal(decodeBytes(t, out), want[:]) {
		t.Errorf("sha256 digest mismatch")
	}

	out, err = b.Invoke(ExternBlake3, bytesArg(t, input), meter())
	if err != nil {
		t.Fatalf("blake3 failed: %v", err)
	}
	want = blake3.Sum256(input)
	if !bytes.Equal(decodeBytes(t, out), want[:]) {
		t.Errorf("blake3 digest mismatch")
	}

	out, err = b.Invoke(ExternKeccak256, bytesArg(t, input), meter())
	if err != nil {
		t.Fatalf("keccak256 failed: %v", err)
	}
	if len(decodeBytes(t, out)) != 32 {
		t.Errorf("keccak256 digest length = %d, want 32", len(decodeBytes(t, out)))
	}
}

// TestRandomDeterministic tests that the randomness stream depends only on
// seed and call order.
func TestRandomDeterministic(t *testing.T) {
	a := New(mapBackend{}, Config{Seed: []byte("seed-1")})
	b := New(mapBackend{}, Config{Seed: []byte("seed-1")})
	c := New(mapBackend{}, Config{Seed: []byte("seed-2")})

	ra1, _ := a.Invoke(ExternRandom, nil, meter())
	ra2, _ := a.Invoke(ExternRandom, nil, meter())
	rb1, _ := b.Invoke(ExternRandom, nil, meter())
	rc1, _ := c.Invoke(ExternRandom, nil, meter())

	if !bytes.Equal(ra1, rb1) {
		t.Errorf("same seed produced different first draws")
	}
	if bytes.Equal(ra1, ra2) {
		t.Errorf("consecutive draws are identical")
	}
	if bytes.Equal(ra1, rc1) {
		t.Errorf("different seeds produced the same draw")
	}
}

// TestTasks tests enqueue ids and result lookup.
func TestTasks(t *testing.T) {
	b := New(mapBackend{}, Config{TaskResults: map[uint64][]byte{1: []byte("done")}})

	out, err := b.Invoke(ExternTaskEnqueue, bytesArg(t, []byte("work-0")), meter())
	if err != nil {
		t.Fatalf("task_enqueue failed: %v", err)
	}
	vs, _ := abi.DecodeTuple(out, []abi.Type{abi.Int})
	if id, _ := vs[0].Int(); id.Int64() != 0 {
		t.Errorf("first task id = %s, want 0", id)
	}
	b.Invoke(ExternTaskEnqueue, bytesArg(t, []byte("work-1")), meter())
	if len(b.Tasks()) != 2 {
		t.Fatalf("Tasks() = %d, want 2", len(b.Tasks()))
	}

	// Completed result is visible; pending is not.
	in := encodeArgs(t, []abi.Type{abi.Int}, []vm.Value{vm.Int64Value(1)})
	out, err = b.Invoke(ExternTaskResult, in, meter())
	if err != nil {
		t.Fatalf("task_result failed: %v", err)
	}
	vs, _ = abi.DecodeTuple(out, []abi.Type{abi.Bool, abi.Bytes})
	ready, _ := vs[0].Bool()
	res, _ := vs[1].Bytes()
	if !ready || string(res) != "done" {
		t.Errorf("task_result(1) = %v, %q, want ready done", ready, res)
	}

	in = encodeArgs(t, []abi.Type{abi.Int}, []vm.Value{vm.Int64Value(5)})
	out, _ = b.Invoke(ExternTaskResult, in, meter())
	vs, _ = abi.DecodeTuple(out, []abi.Type{abi.Bool, abi.Bytes})
	if ready, _ := vs[0].Bool(); ready {
		t.Errorf("task_result(5) ready, want pending")
	}
}

// TestTasksJournaled tests that enqueued tasks follow frame layers the
// way writes and events do: a discarded layer's tasks vanish, and ids
// are not reused afterwards.
func TestTasksJournaled(t *testing.T) {
	b := New(mapBackend{}, Config{})

	b.Invoke(ExternTaskEnqueue, bytesArg(t, []byte("kept")), meter())
	b.Journal().Push()
	b.Invoke(ExternTaskEnqueue, bytesArg(t, []byte("doomed")), meter())
	b.Journal().DiscardOpen()

	tasks := b.Tasks()
	if len(tasks) != 1 || string(tasks[0].Payload) != "kept" {
		t.Fatalf("Tasks() after discard = %v, want only the top-level task", tasks)
	}

	// A committed layer's tasks survive, and the discarded id is gone
	// for good.
	b.Journal().Push()
	out, err := b.Invoke(ExternTaskEnqueue, bytesArg(t, []byte("later")), meter())
	if err != nil {
		t.Fatalf("task_enqueue failed: %v", err)
	}
	vs, _ := abi.DecodeTuple(out, []abi.Type{abi.Int})
	if id, _ := vs[0].Int(); id.Int64() != 2 {
		t.Errorf("task id after discard = %s, want 2", id)
	}
	b.Journal().Commit()
	tasks = b.Tasks()
	if len(tasks) != 2 || tasks[1].ID != 2 || string(tasks[1].Payload) != "later" {
		t.Errorf("Tasks() = %v, want kept and later", tasks)
	}
}

// TestUnknownSlot tests the unassigned-id error.
func TestUnknownSlot(t *testing.T) {
	b := New(mapBackend{}, Config{})
	if _, err := b.Invoke(999, nil, meter()); !errors.Is(err, ErrNoSlot) {
		t.Errorf("Invoke(999) = %v, want ErrNoSlot", err)
	}
}

// TestBadInput tests malformed extern input rejection.
func TestBadInput(t *testing.T) {
	b := New(mapBackend{}, Config{})
	if _, err := b.Invoke(ExternStorageGet, []byte{0xff}, meter()); !errors.Is(err, ErrExternInput) {
		t.Errorf("Invoke(bad input) = %v, want ErrExternInput", err)
	}
}

// TestLoadCharge tests that storage_get debits for loaded value size.
func TestLoadCharge(t *testing.T) {
	big := make([]byte, 1000)
	b := New(mapBackend{"k": big}, Config{})
	m := gas.NewMeter(10)
	if _, err := b.Invoke(ExternStorageGet, bytesArg(t, []byte("k")), m); !errors.Is(err, gas.ErrOutOfGas) {
		t.Errorf("Invoke(big value, tiny meter) = %v, want ErrOutOfGas", err)
	}
}

// Package bridge hosts the extern surface of the Ember VM: the fixed slot
// vector contracts call through CALL_EXTERN, the layered effect journal
// that makes storage writes and events transactional, and the deterministic
// randomness and deferred-task facilities.
//
// Externs are addressed by integer id. The id assignment is part of the
// wire contract and must never be reshuffled.
package bridge

import (
	"errors"
	"fmt"

	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/gas"
)

// Extern slot ids.
const (
	ExternStorageGet  uint32 = 0
	ExternStorageSet  uint32 = 1
	ExternStorageDel  uint32 = 2
	ExternEmitEvent   uint32 = 3
	ExternSha256      uint32 = 4
	ExternKeccak256   uint32 = 5
	ExternBlake3      uint32 = 6
	ExternRandom      uint32 = 7
	ExternTaskEnqueue uint32 = 8
	ExternTaskResult  uint32 = 9
)

var (
	// ErrNoSlot is returned when a call names an extern id with no slot.
	ErrNoSlot = errors.New("extern slot not linked")

	// ErrExternInput is returned when an extern's input bytes do not
	// decode against its declared parameter types.
	ErrExternInput = errors.New("malformed extern input")
)

// Slot executes one extern. Input is the abi-encoded argument tuple; the
// meter is available for costs the flat per-call charge cannot express,
// such as charging for loaded value size.
type Slot func(in []byte, m *gas.Meter) ([]byte, error)

// Def describes one extern slot: its id, diagnostic name, and typed
// parameters and returns. Arity information drives static validation of
// CALL_EXTERN sites.
type Def struct {
	ID      uint32
	Name    string
	Params  []abi.Type
	Returns []abi.Type
}

// standardDefs is the slot vector contract. Index order is irrelevant;
// lookup is by id.
var standardDefs = []Def{
	{ID: ExternStorageGet, Name: "storage_get", Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Bytes}},
	{ID: ExternStorageSet, Name: "storage_set", Params: []abi.Type{abi.Bytes, abi.Bytes}, Returns: nil},
	{ID: ExternStorageDel, Name: "storage_del", Params: []abi.Type{abi.Bytes}, Returns: nil},
	{ID: ExternEmitEvent, Name: "emit_event", Params: []abi.Type{abi.Bytes, abi.Bytes}, Returns: nil},
	{ID: ExternSha256, Name: "sha256", Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Bytes}},
	{ID: ExternKeccak256, Name: "keccak256", Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Bytes}},
	{ID: ExternBlake3, Name: "blake3", Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Bytes}},
	{ID: ExternRandom, Name: "random", Params: nil, Returns: []abi.Type{abi.Bytes}},
	{ID: ExternTaskEnqueue, Name: "task_enqueue", Params: []abi.Type{abi.Bytes}, Returns: []abi.Type{abi.Int}},
	{ID: ExternTaskResult, Name: "task_result", Params: []abi.Type{abi.Int}, Returns: []abi.Type{abi.Bool, abi.Bytes}},
}

// StandardDefs returns the slot vector metadata, keyed by extern id.
func StandardDefs() map[uint32]Def {
	defs := make(map[uint32]Def, len(standardDefs))
	for _, d := range standardDefs {
		defs[d.ID] = d
	}
	return defs
}

// StandardExternCosts returns the default gas cost of each extern, charged
// by the engine against the encoded input size before the slot runs.
func StandardExternCosts() map[uint32]gas.Cost {
	return map[uint32]gas.Cost{
		ExternStorageGet:  {Base: 200, PerUnit: 3},
		ExternStorageSet:  {Base: 500, PerUnit: 8},
		ExternStorageDel:  {Base: 300, PerUnit: 3},
		ExternEmitEvent:   {Base: 375, PerUnit: 8},
		ExternSha256:      {Base: 60, PerUnit: 12},
		ExternKeccak256:   {Base: 60, PerUnit: 12},
		ExternBlake3:      {Base: 30, PerUnit: 6},
		ExternRandom:      {Base: 150, PerUnit: 0},
		ExternTaskEnqueue: {Base: 250, PerUnit: 6},
		ExternTaskResult:  {Base: 100, PerUnit: 3},
	}
}

// Backend is the persistent key/value store the bridge reads through. All
// writes stay in the journal until the host applies them after a
// successful run.
type Backend interface {
	Get(key []byte) ([]byte, error)
}

// Config carries the per-execution inputs of the bridge.
type Config struct {
	// Seed drives the deterministic randomness stream. Two runs with
	// the same seed and call sequence observe identical random bytes.
	Seed []byte

	// TaskResults holds the completed results visible to task_result,
	// keyed by task id.
	TaskResults map[uint64][]byte
}

// Bridge binds the slot vector to a storage backend and one execution's
// journal, randomness stream, and task queue.
type Bridge struct {
	backend Backend
	journal *Journal

	seed    []byte
	counter uint64

	nextTask uint64
	results  map[uint64][]byte

	slots map[uint32]Slot
}

// Task is one unit of deferred work enqueued during execution. Tasks
// are journaled like writes and events: a reverted nested call's tasks
// never reach the host.
type Task struct {
	ID      uint64
	Payload []byte
}

// New builds a bridge over a backend with the standard slot vector.
func New(backend Backend, cfg Config) *Bridge {
	b := &Bridge{
		backend: backend,
		journal: NewJournal(),
		seed:    append([]byte(nil), cfg.Seed...),
		results: cfg.TaskResults,
	}
	b.slots = map[uint32]Slot{
		ExternStorageGet:  b.storageGet,
		ExternStorageSet:  b.storageSet,
		ExternStorageDel:  b.storageDel,
		ExternEmitEvent:   b.emitEvent,
		ExternSha256:      hashSlot(sumSha256),
		ExternKeccak256:   hashSlot(sumKeccak256),
		ExternBlake3:      hashSlot(sumBlake3),
		ExternRandom:      b.random,
		ExternTaskEnqueue: b.taskEnqueue,
		ExternTaskResult:  b.taskResult,
	}
	return b
}

// Journal exposes the bridge's effect journal for frame management by the
// engine and final collection by the host.
func (b *Bridge) Journal() *Journal {
	return b.journal
}

// Tasks returns the surviving enqueued work, in order.
func (b *Bridge) Tasks() []Task {
	return b.journal.Tasks()
}

// Invoke runs extern eid with the given encoded input.
func (b *Bridge) Invoke(eid uint32, in []byte, m *gas.Meter) ([]byte, error) {
	slot, ok := b.slots[eid]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNoSlot, eid)
	}
	return slot(in, m)
}

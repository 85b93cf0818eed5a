package bridge

import (
	"sort"

	"github.com/emberchain/ember/pkg/vm"
)

// Journal accumulates storage writes, events and enqueued tasks in
// call-frame layers.
//
// Every call frame owns one layer. Returning commits the frame's layer
// into its parent; a revert or fault discards every layer above the
// bottom one, so effects of failed nested calls vanish while effects the
// top-level frame had already made stay pending. An empty written value
// is a deletion: contracts cannot distinguish an absent key from an empty
// one.
type Journal struct {
	layers []*layer
}

type layer struct {
	writes map[string][]byte
	events []vm.Event
	tasks  []Task
}

// NewJournal returns a journal with a single open layer.
func NewJournal() *Journal {
	return &Journal{layers: []*layer{newLayer()}}
}

func newLayer() *layer {
	return &layer{writes: make(map[string][]byte)}
}

// Depth returns the number of open layers.
func (j *Journal) Depth() int {
	return len(j.layers)
}

// Push opens a new layer for an entered call frame.
func (j *Journal) Push() {
	j.layers = append(j.layers, newLayer())
}

// Commit merges the top layer into its parent, preserving event order.
// Committing the bottom layer is a no-op.
func (j *Journal) Commit() {
	if len(j.layers) < 2 {
		return
	}
	top := j.layers[len(j.layers)-1]
	parent := j.layers[len(j.layers)-2]
	for k, v := range top.writes {
		parent.writes[k] = v
	}
	parent.events = append(parent.events, top.events...)
	parent.tasks = append(parent.tasks, top.tasks...)
	j.layers = j.layers[:len(j.layers)-1]
}

// DiscardOpen drops every layer above the bottom one. Used when execution
// fails: nested pending effects vanish, top-level ones stay.
func (j *Journal) DiscardOpen() {
	j.layers = j.layers[:1]
}

// Set records a write in the top layer. An empty value deletes the key.
func (j *Journal) Set(key, value []byte) {
	top := j.layers[len(j.layers)-1]
	top.writes[string(key)] = append([]byte(nil), value...)
}

// Get returns the pending value for key from the newest layer that wrote
// it. The second result is false when no layer has written the key.
func (j *Journal) Get(key []byte) ([]byte, bool) {
	k := string(key)
	for i := len(j.layers) - 1; i >= 0; i-- {
		if v, ok := j.layers[i].writes[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// AddEvent appends an event to the top layer.
func (j *Journal) AddEvent(ev vm.Event) {
	top := j.layers[len(j.layers)-1]
	top.events = append(top.events, ev)
}

// Events returns the committed events of the bottom layer.
func (j *Journal) Events() []vm.Event {
	return j.layers[0].events
}

// AddTask appends an enqueued task to the top layer.
func (j *Journal) AddTask(t Task) {
	top := j.layers[len(j.layers)-1]
	top.tasks = append(top.tasks, t)
}

// Tasks returns the committed tasks of the bottom layer.
func (j *Journal) Tasks() []Task {
	return j.layers[0].tasks
}

// Write is one surviving storage effect. An empty Value deletes the key.
type Write struct {
	Key   []byte
	Value []byte
}

// Writes returns the surviving storage effects of the bottom layer in
// key order, for deterministic application by the host.
func (j *Journal) Writes() []Write {
	bottom := j.layers[0]
	keys := make([]string, 0, len(bottom.writes))
	for k := range bottom.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Write, 0, len(keys))
	for _, k := range keys {
		out = append(out, Write{Key: []byte(k), Value: bottom.writes[k]})
	}
	return out
}

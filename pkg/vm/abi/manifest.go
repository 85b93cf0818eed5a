package abi

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSelectorCollision is returned when two manifest entries hash to
	// the same selector.
	ErrSelectorCollision = errors.New("abi selector collision")

	// ErrUnknownSelector is returned when a call payload carries a
	// selector the manifest does not export.
	ErrUnknownSelector = errors.New("unknown abi selector")

	// ErrDuplicateExport is returned when a manifest exports the same
	// function name twice with identical parameter types.
	ErrDuplicateExport = errors.New("duplicate abi export")
)

// Function describes one exported entry point of a module: its external
// name, the VM function it dispatches to, and its typed parameters and
// returns.
type Function struct {
	Name    string
	FuncID  uint32
	Params  []Type
	Returns []Type
}

// Signature returns the function's canonical signature string.
func (f *Function) Signature() string {
	return Signature(f.Name, f.Params)
}

// Selector returns the function's dispatch selector.
func (f *Function) Selector() Selector {
	return SelectorFor(f.Name, f.Params)
}

// functionWire is the JSON form of a Function; types appear as their
// canonical textual names.
type functionWire struct {
	Name    string   `json:"name"`
	FuncID  uint32   `json:"func_id"`
	Params  []string `json:"params"`
	Returns []string `json:"returns"`
}

// MarshalJSON renders types in their canonical textual form.
func (f Function) MarshalJSON() ([]byte, error) {
	w := functionWire{Name: f.Name, FuncID: f.FuncID}
	for _, t := range f.Params {
		w.Params = append(w.Params, t.String())
	}
	for _, t := range f.Returns {
		w.Returns = append(w.Returns, t.String())
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses types from their canonical textual form.
func (f *Function) UnmarshalJSON(data []byte) error {
	var w functionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.Name = w.Name
	f.FuncID = w.FuncID
	f.Params, f.Returns = nil, nil
	for _, s := range w.Params {
		t, err := ParseType(s)
		if err != nil {
			return err
		}
		f.Params = append(f.Params, t)
	}
	for _, s := range w.Returns {
		t, err := ParseType(s)
		if err != nil {
			return err
		}
		f.Returns = append(f.Returns, t)
	}
	return nil
}

// Manifest lists the exported functions of a module.
type Manifest struct {
	Functions []Function `json:"functions"`
}

// Index maps selectors to manifest functions for dispatch.
type Index map[Selector]*Function

// BuildIndex computes the selector for every exported function and rejects
// collisions. A module whose manifest fails here must not be accepted.
func (m *Manifest) BuildIndex() (Index, error) {
	idx := make(Index, len(m.Functions))
	for i := range m.Functions {
		f := &m.Functions[i]
		sel := f.Selector()
		if prev, ok := idx[sel]; ok {
			if prev.Signature() == f.Signature() {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateExport, f.Signature())
			}
			return nil, fmt.Errorf("%w: %s vs %s", ErrSelectorCollision, prev.Signature(), f.Signature())
		}
		idx[sel] = f
	}
	return idx, nil
}

// Lookup resolves a selector to its manifest function.
func (idx Index) Lookup(sel Selector) (*Function, error) {
	f, ok := idx[sel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, sel)
	}
	return f, nil
}

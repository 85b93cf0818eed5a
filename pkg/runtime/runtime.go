// Package runtime is the host-facing surface of the Ember VM: it loads and
// validates modules, dispatches ABI call payloads, runs the interpreter
// under a gas meter, and applies surviving effects to persistent state.
package runtime

import (
	"errors"
	"fmt"
	"log"

	"github.com/emberchain/ember/pkg/state"
	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/bridge"
	"github.com/emberchain/ember/pkg/vm/codec"
	"github.com/emberchain/ember/pkg/vm/gas"
	"github.com/emberchain/ember/pkg/vm/interp"
	"github.com/emberchain/ember/pkg/vm/ir"
	"github.com/emberchain/ember/pkg/vm/validate"
)

// CostTableVersion is the version of the built-in cost schedule.
const CostTableVersion = 1

// ErrNoManifest is returned when a call payload arrives but the module was
// loaded without a manifest.
var ErrNoManifest = errors.New("module loaded without a manifest")

// DefaultCostTable returns the built-in cost schedule: the default opcode
// costs plus the standard extern costs.
func DefaultCostTable() *gas.Table {
	return gas.NewTable(CostTableVersion, gas.DefaultOpCosts(), bridge.StandardExternCosts())
}

// Config holds runtime configuration. Zero-value fields fall back to the
// defaults.
type Config struct {
	// Limits are the machine resource caps.
	Limits vm.Limits

	// Table is the gas cost schedule.
	Table *gas.Table

	// Logger, when set, receives one line per call.
	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.Limits == (vm.Limits{}) {
		c.Limits = vm.DefaultLimits()
	}
	if c.Table == nil {
		c.Table = DefaultCostTable()
	}
	return c
}

// Runtime executes calls against one validated module over one store.
type Runtime struct {
	mod      *ir.Module
	manifest *abi.Manifest
	idx      abi.Index
	store    state.Store
	eng      *interp.Engine
	cfg      Config
}

// Load decodes, validates, and prepares a module. Validation runs exactly
// once, here; execution assumes it.
func Load(raw []byte, manifest *abi.Manifest, store state.Store, cfg Config) (*Runtime, error) {
	m, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	return LoadModule(m, manifest, store, cfg)
}

// LoadModule validates and prepares an already-decoded module.
func LoadModule(m *ir.Module, manifest *abi.Manifest, store state.Store, cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := validate.Module(m, cfg.Limits, bridge.StandardDefs(), manifest); err != nil {
		return nil, fmt.Errorf("validate module: %w", err)
	}
	var idx abi.Index
	if manifest != nil {
		// Collisions were already rejected by validation.
		idx, _ = manifest.BuildIndex()
	}
	return &Runtime{
		mod:      m,
		manifest: manifest,
		idx:      idx,
		store:    store,
		eng:      interp.New(m, cfg.Limits, cfg.Table),
		cfg:      cfg,
	}, nil
}

// Module returns the validated module.
func (r *Runtime) Module() *ir.Module {
	return r.mod
}

// CallContext carries the per-call inputs.
type CallContext struct {
	// GasLimit is the call's gas budget.
	GasLimit uint64

	// Seed drives the deterministic randomness stream.
	Seed []byte

	// TaskResults holds completed deferred-task results visible to the
	// call.
	TaskResults map[uint64][]byte
}

// Receipt is the outcome of one call.
type Receipt struct {
	// Status is the terminal state; Fault narrows it for StatusFault.
	Status interp.Status
	Fault  interp.FaultKind

	// GasUsed is the metered consumption; RefundHint is advisory and
	// was never re-credited during execution.
	GasUsed    uint64
	RefundHint uint64

	// Data is the encoded return tuple on success, or the revert reason.
	Data []byte

	// Events are the surviving events, in emission order.
	Events []vm.Event

	// Tasks is the surviving deferred work enqueued by the call.
	Tasks []bridge.Task
}

// Call dispatches an ABI call payload: selector lookup, argument decode,
// execution, and effect application. Surviving storage writes and events
// are applied to the store even when the call fails, because the top-level
// journal layer is kept on failure; only nested pending effects vanish.
func (r *Runtime) Call(payload []byte, ctx CallContext) (*Receipt, error) {
	if r.idx == nil {
		return nil, ErrNoManifest
	}
	fn, args, err := abi.DecodeCall(payload, r.idx)
	if err != nil {
		return nil, err
	}
	rcpt, out, err := r.execute(fn.FuncID, args, ctx)
	if err != nil {
		return nil, err
	}
	if rcpt.Status == interp.StatusOK {
		data, err := abi.EncodeReturn(fn.Returns, out.Returns)
		if err != nil {
			return nil, fmt.Errorf("encode returns of %s: %w", fn.Name, err)
		}
		rcpt.Data = data
	}
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf("call %s: status=%s gas=%d events=%d", fn.Name, rcpt.Status, rcpt.GasUsed, len(rcpt.Events))
	}
	return rcpt, nil
}

// Execute runs a function by id without ABI dispatch. Returned values are
// raw VM values; effects are applied the same way Call applies them.
func (r *Runtime) Execute(fid uint32, args []vm.Value, ctx CallContext) (*Receipt, []vm.Value, error) {
	rcpt, out, err := r.execute(fid, args, ctx)
	if err != nil {
		return nil, nil, err
	}
	return rcpt, out.Returns, nil
}

func (r *Runtime) execute(fid uint32, args []vm.Value, ctx CallContext) (*Receipt, interp.Outcome, error) {
	meter := gas.NewMeter(ctx.GasLimit)
	br := bridge.New(r.store, bridge.Config{
		Seed:        ctx.Seed,
		TaskResults: ctx.TaskResults,
	})

	out, err := r.eng.Execute(fid, args, meter, br)
	if err != nil {
		return nil, interp.Outcome{}, err
	}

	j := br.Journal()
	if err := r.store.ApplyWrites(j.Writes()); err != nil {
		return nil, interp.Outcome{}, fmt.Errorf("apply writes: %w", err)
	}

	rcpt := &Receipt{
		Status:     out.Status,
		Fault:      out.Fault,
		GasUsed:    meter.Used(),
		RefundHint: meter.RefundHint(),
		Data:       out.Revert,
		Events:     j.Events(),
		Tasks:      br.Tasks(),
	}
	return rcpt, out, nil
}

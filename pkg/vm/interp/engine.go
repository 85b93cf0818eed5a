// Package interp executes validated modules: a stack machine over labeled
// basic blocks with an explicit frame stack, strict gas metering, and
// transactional effects through the bridge journal.
//
// The engine trusts static validation completely. It never re-checks
// operand ranges, jump targets, call arities, or stack heights; feeding it
// an unvalidated module is a host bug.
package interp

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/bridge"
	"github.com/emberchain/ember/pkg/vm/gas"
	"github.com/emberchain/ember/pkg/vm/ir"
)

var (
	// ErrUnknownFunction is returned when the host asks for a function
	// id the module does not define.
	ErrUnknownFunction = errors.New("unknown function id")

	// ErrArity is returned when the host passes the wrong number of
	// arguments.
	ErrArity = errors.New("argument count mismatch")

	// ErrArgRange is returned when the host passes an argument outside
	// the value limits the engine enforces internally.
	ErrArgRange = errors.New("argument out of range")
)

// revertSignal carries a contract's explicit abort up the run loop.
type revertSignal struct {
	reason []byte
}

func (revertSignal) Error() string { return "contract reverted" }

// faultSignal carries an unrecoverable condition up the run loop.
type faultSignal struct {
	kind FaultKind
	err  error
}

func (f faultSignal) Error() string { return f.err.Error() }

func fault(kind FaultKind, format string, args ...any) error {
	return faultSignal{kind: kind, err: fmt.Errorf(format, args...)}
}

// Engine executes functions of a single validated module. It is stateless
// across executions and safe for concurrent use; per-execution state lives
// in the meter and the bridge.
type Engine struct {
	mod    *ir.Module
	limits vm.Limits
	table  *gas.Table
	defs   map[uint32]bridge.Def
}

// New builds an engine for a validated module.
func New(mod *ir.Module, limits vm.Limits, table *gas.Table) *Engine {
	return &Engine{
		mod:    mod,
		limits: limits,
		table:  table,
		defs:   bridge.StandardDefs(),
	}
}

// frame is one activation: the function, its operand stack, and the
// position of the next instruction.
type frame struct {
	fn    *ir.Func
	stack []vm.Value
	block int
	ip    int
}

func (f *frame) push(v vm.Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() vm.Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popInt() (*big.Int, error) {
	v := f.pop()
	n, ok := v.Int()
	if !ok {
		return nil, fault(FaultKindMismatch, "want int, have %s", v.Kind())
	}
	return n, nil
}

func (f *frame) popBool() (bool, error) {
	v := f.pop()
	b, ok := v.Bool()
	if !ok {
		return false, fault(FaultKindMismatch, "want bool, have %s", v.Kind())
	}
	return b, nil
}

func (f *frame) popBytes() ([]byte, error) {
	v := f.pop()
	b, ok := v.Bytes()
	if !ok {
		return nil, fault(FaultKindMismatch, "want bytes, have %s", v.Kind())
	}
	return b, nil
}

// Execute runs function fid with the given arguments against the meter and
// bridge. The returned error covers host misuse only; contract-level
// failure is reported through the outcome, after discarding any nested
// pending effects.
func (e *Engine) Execute(fid uint32, args []vm.Value, m *gas.Meter, br *bridge.Bridge) (Outcome, error) {
	fn, ok := e.mod.FuncByID(fid)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %d", ErrUnknownFunction, fid)
	}
	if len(args) != int(fn.ParamCount) {
		return Outcome{}, fmt.Errorf("%w: func %d takes %d, got %d", ErrArity, fid, fn.ParamCount, len(args))
	}
	for i, a := range args {
		n, ok := a.Int()
		if ok && n.BitLen() > e.limits.MaxIntBits {
			return Outcome{}, fmt.Errorf("%w: arg %d is %d bits", ErrArgRange, i, n.BitLen())
		}
		if b, ok := a.Bytes(); ok && len(b) > e.limits.MaxBytesLen {
			return Outcome{}, fmt.Errorf("%w: arg %d is %d bytes", ErrArgRange, i, len(b))
		}
	}

	rets, err := e.run(fn, args, m, br)
	if err == nil {
		return Outcome{Status: StatusOK, Returns: rets}, nil
	}

	br.Journal().DiscardOpen()
	switch {
	case errors.Is(err, gas.ErrOutOfGas):
		return Outcome{Status: StatusOutOfGas}, nil
	default:
		var rev revertSignal
		if errors.As(err, &rev) {
			return Outcome{Status: StatusRevert, Revert: rev.reason}, nil
		}
		var flt faultSignal
		if errors.As(err, &flt) {
			return Outcome{Status: StatusFault, Fault: flt.kind}, nil
		}
		return Outcome{Status: StatusFault, Fault: FaultInternal}, nil
	}
}

func (e *Engine) run(fn *ir.Func, args []vm.Value, m *gas.Meter, br *bridge.Bridge) (rets []vm.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			rets, err = nil, fault(FaultInternal, "panic: %v", r)
		}
	}()

	root := &frame{fn: fn, stack: append([]vm.Value(nil), args...)}
	frames := []*frame{root}

	for {
		f := frames[len(frames)-1]
		ins := f.fn.Blocks[f.block].Code[f.ip]

		if ins.Op != ir.OpCallExtern {
			cost, cerr := e.table.OpCost(ins.Op, e.sizeHint(f, ins))
			if cerr != nil {
				return nil, fault(FaultInternal, "cost table: %v", cerr)
			}
			if derr := m.Debit(cost); derr != nil {
				return nil, derr
			}
		}

		switch ins.Op {
		case ir.OpJump:
			f.block, _ = f.fn.BlockIndex(ins.A)
			f.ip = 0
			continue

		case ir.OpJumpI:
			cond, perr := f.popBool()
			if perr != nil {
				return nil, perr
			}
			target := ins.B
			if cond {
				target = ins.A
			}
			f.block, _ = f.fn.BlockIndex(target)
			f.ip = 0
			continue

		case ir.OpRet:
			rc := int(f.fn.ReturnCount)
			out := append([]vm.Value(nil), f.stack[len(f.stack)-rc:]...)
			frames = frames[:len(frames)-1]
			if len(frames) == 0 {
				return out, nil
			}
			br.Journal().Commit()
			caller := frames[len(frames)-1]
			caller.stack = append(caller.stack, out...)
			continue

		case ir.OpRevert:
			reason, perr := f.popBytes()
			if perr != nil {
				return nil, perr
			}
			return nil, revertSignal{reason: reason}

		case ir.OpCall:
			callee, _ := e.mod.FuncByID(ins.A)
			argc := int(ins.B)
			callArgs := append([]vm.Value(nil), f.stack[len(f.stack)-argc:]...)
			f.stack = f.stack[:len(f.stack)-argc]
			f.ip++
			br.Journal().Push()
			frames = append(frames, &frame{fn: callee, stack: callArgs})
			continue

		case ir.OpCallExtern:
			if cerr := e.callExtern(f, ins, m, br); cerr != nil {
				return nil, cerr
			}
			f.ip++
			continue

		default:
			if serr := e.step(f, ins); serr != nil {
				return nil, serr
			}
			f.ip++
		}
	}
}

// callExtern encodes the argument tuple, debits the extern's charge on the
// encoded size, and invokes the slot. The debit happens strictly before
// the slot runs.
func (e *Engine) callExtern(f *frame, ins ir.Instr, m *gas.Meter, br *bridge.Bridge) error {
	def := e.defs[ins.A]
	argc := int(ins.B)
	args := append([]vm.Value(nil), f.stack[len(f.stack)-argc:]...)
	f.stack = f.stack[:len(f.stack)-argc]

	in, err := abi.EncodeTuple(def.Params, args)
	if err != nil {
		return fault(FaultKindMismatch, "extern %s args: %v", def.Name, err)
	}
	cost, err := e.table.ExternCost(ins.A, len(in))
	if err != nil {
		return fault(FaultInternal, "cost table: %v", err)
	}
	if err := m.Debit(cost); err != nil {
		return err
	}

	out, err := br.Invoke(ins.A, in, m)
	if err != nil {
		if errors.Is(err, gas.ErrOutOfGas) {
			return err
		}
		return fault(FaultExtern, "extern %s: %v", def.Name, err)
	}
	if len(def.Returns) == 0 {
		return nil
	}
	vals, err := abi.DecodeTuple(out, def.Returns)
	if err != nil {
		return fault(FaultExtern, "extern %s output: %v", def.Name, err)
	}
	f.stack = append(f.stack, vals...)
	return nil
}

// step executes one non-control instruction.
func (e *Engine) step(f *frame, ins ir.Instr) error {
	switch ins.Op {
	case ir.OpPushConst:
		c := e.mod.Consts[ins.A]
		switch c.Kind {
		case ir.ConstInt:
			f.push(vm.IntValue(c.Int))
		case ir.ConstBytes:
			f.push(vm.BytesValue(c.Bytes))
		case ir.ConstTuple:
			for _, el := range c.Tuple {
				if el.Kind == ir.ConstInt {
					f.push(vm.IntValue(el.Int))
				} else {
					f.push(vm.BytesValue(el.Bytes))
				}
			}
		}

	case ir.OpPop:
		f.pop()

	case ir.OpDup:
		f.push(f.stack[len(f.stack)-1])

	case ir.OpSwap:
		n := len(f.stack)
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

	case ir.OpPick:
		f.push(f.stack[len(f.stack)-1-int(ins.A)])

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr:
		return e.binaryInt(f, ins.Op)

	case ir.OpNeg:
		n, err := f.popInt()
		if err != nil {
			return err
		}
		out := new(big.Int).Neg(n)
		if out.BitLen() > e.limits.MaxIntBits {
			return fault(FaultCap, "result %d bits over cap", out.BitLen())
		}
		f.push(vm.IntValue(out))

	case ir.OpNot:
		n, err := f.popInt()
		if err != nil {
			return err
		}
		out := new(big.Int).Not(n)
		if out.BitLen() > e.limits.MaxIntBits {
			return fault(FaultCap, "result %d bits over cap", out.BitLen())
		}
		f.push(vm.IntValue(out))

	case ir.OpEq, ir.OpNe:
		b := f.pop()
		a := f.pop()
		if a.Kind() != b.Kind() {
			return fault(FaultKindMismatch, "compare %s with %s", a.Kind(), b.Kind())
		}
		eq := a.Equal(b)
		if ins.Op == ir.OpNe {
			eq = !eq
		}
		f.push(vm.BoolValue(eq))

	case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		b, err := f.popInt()
		if err != nil {
			return err
		}
		a, err := f.popInt()
		if err != nil {
			return err
		}
		cmp := a.Cmp(b)
		var r bool
		switch ins.Op {
		case ir.OpLt:
			r = cmp < 0
		case ir.OpLe:
			r = cmp <= 0
		case ir.OpGt:
			r = cmp > 0
		case ir.OpGe:
			r = cmp >= 0
		}
		f.push(vm.BoolValue(r))

	case ir.OpIsZero:
		n, err := f.popInt()
		if err != nil {
			return err
		}
		f.push(vm.BoolValue(n.Sign() == 0))

	case ir.OpConcat:
		b, err := f.popBytes()
		if err != nil {
			return err
		}
		a, err := f.popBytes()
		if err != nil {
			return err
		}
		if len(a)+len(b) > e.limits.MaxBytesLen {
			return fault(FaultCap, "concat result %d bytes over cap", len(a)+len(b))
		}
		out := make([]byte, 0, len(a)+len(b))
		out = append(out, a...)
		out = append(out, b...)
		f.push(vm.BytesValue(out))

	case ir.OpSlice:
		end, err := f.popInt()
		if err != nil {
			return err
		}
		start, err := f.popInt()
		if err != nil {
			return err
		}
		data, err := f.popBytes()
		if err != nil {
			return err
		}
		if start.Sign() < 0 || !start.IsInt64() || !end.IsInt64() {
			return fault(FaultRange, "slice bounds %s:%s", start, end)
		}
		s, t := start.Int64(), end.Int64()
		if s > t || t > int64(len(data)) {
			return fault(FaultRange, "slice bounds %d:%d of %d", s, t, len(data))
		}
		f.push(vm.BytesValue(append([]byte(nil), data[s:t]...)))

	case ir.OpLen:
		b, err := f.popBytes()
		if err != nil {
			return err
		}
		f.push(vm.Int64Value(int64(len(b))))

	case ir.OpI2B:
		n, err := f.popInt()
		if err != nil {
			return err
		}
		if n.Sign() < 0 {
			return fault(FaultRange, "i2b of negative %s", n)
		}
		f.push(vm.BytesValue(n.Bytes()))

	case ir.OpB2I:
		b, err := f.popBytes()
		if err != nil {
			return err
		}
		n := new(big.Int).SetBytes(b)
		if n.BitLen() > e.limits.MaxIntBits {
			return fault(FaultCap, "b2i result %d bits over cap", n.BitLen())
		}
		f.push(vm.IntValue(n))

	default:
		return fault(FaultInternal, "unhandled opcode %s", ins.Op)
	}
	return nil
}

// binaryInt executes a two-operand integer instruction with the magnitude
// cap applied to the result.
func (e *Engine) binaryInt(f *frame, op ir.Opcode) error {
	b, err := f.popInt()
	if err != nil {
		return err
	}
	a, err := f.popInt()
	if err != nil {
		return err
	}
	out := new(big.Int)
	switch op {
	case ir.OpAdd:
		out.Add(a, b)
	case ir.OpSub:
		out.Sub(a, b)
	case ir.OpMul:
		out.Mul(a, b)
	case ir.OpDiv:
		if b.Sign() == 0 {
			return fault(FaultDivZero, "division by zero")
		}
		out.Quo(a, b)
	case ir.OpMod:
		if b.Sign() == 0 {
			return fault(FaultDivZero, "modulo by zero")
		}
		out.Rem(a, b)
	case ir.OpAnd:
		out.And(a, b)
	case ir.OpOr:
		out.Or(a, b)
	case ir.OpXor:
		out.Xor(a, b)
	case ir.OpShl, ir.OpShr:
		if b.Sign() < 0 || !b.IsInt64() || b.Int64() > int64(e.limits.MaxShift) {
			return fault(FaultRange, "shift by %s", b)
		}
		if op == ir.OpShl {
			out.Lsh(a, uint(b.Int64()))
		} else {
			out.Rsh(a, uint(b.Int64()))
		}
	}
	if out.BitLen() > e.limits.MaxIntBits {
		return fault(FaultCap, "result %d bits over cap", out.BitLen())
	}
	f.push(vm.IntValue(out))
	return nil
}

// sizeHint estimates the byte size driving size-proportional op costs by
// peeking the operands. A wrong-kinded peek yields zero; the execution
// step faults right after the charge either way.
func (e *Engine) sizeHint(f *frame, ins ir.Instr) int {
	peekBytes := func(depth int) int {
		if len(f.stack) <= depth {
			return 0
		}
		if b, ok := f.stack[len(f.stack)-1-depth].Bytes(); ok {
			return len(b)
		}
		return 0
	}
	switch ins.Op {
	case ir.OpConcat:
		return peekBytes(0) + peekBytes(1)
	case ir.OpSlice:
		return peekBytes(2)
	case ir.OpB2I:
		return peekBytes(0)
	case ir.OpI2B:
		if len(f.stack) == 0 {
			return 0
		}
		if n, ok := f.stack[len(f.stack)-1].Int(); ok {
			return (n.BitLen() + 7) / 8
		}
		return 0
	default:
		return 0
	}
}

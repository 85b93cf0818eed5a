// Package validate implements static validation of decoded modules. A
// module that passes here cannot underflow the operand stack, jump to a
// missing block, call a missing function or extern, or recurse; the
// interpreter relies on that and re-checks none of it.
//
// Validation runs once per module, before any gas is charged.
package validate

import (
	"errors"
	"fmt"

	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/bridge"
	"github.com/emberchain/ember/pkg/vm/ir"
)

var (
	ErrNoFuncs        = errors.New("module has no functions")
	ErrCap            = errors.New("size cap exceeded")
	ErrConstTooBig    = errors.New("constant exceeds limits")
	ErrNestedTuple    = errors.New("tuple constants cannot nest")
	ErrFuncOrder      = errors.New("function ids not strictly ascending")
	ErrBlockOrder     = errors.New("block labels not strictly ascending")
	ErrBadEntrypoint  = errors.New("entrypoint names a missing function")
	ErrBadOpcode      = errors.New("undefined opcode")
	ErrConstRange     = errors.New("constant index out of range")
	ErrBadLabel       = errors.New("jump to missing block")
	ErrBadCallTarget  = errors.New("call to missing function")
	ErrBadExtern      = errors.New("call to missing extern slot")
	ErrArgCount       = errors.New("call argument count mismatch")
	ErrEmptyBlock     = errors.New("block has no instructions")
	ErrNoTerminator   = errors.New("block does not end in a terminator")
	ErrMidTerminator  = errors.New("terminator before end of block")
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrStackOverflow  = errors.New("operand stack height over limit")
	ErrHeightMismatch = errors.New("inconsistent stack height at join")
	ErrUnreachable    = errors.New("unreachable block")
	ErrRetHeight      = errors.New("stack height at RET does not match return count")
	ErrRecursion      = errors.New("call graph contains a cycle")
	ErrCallDepth      = errors.New("static call depth over limit")
	ErrManifestFunc   = errors.New("manifest entry does not match function")
)

// Module checks a decoded module against the given limits, extern slot
// vector, and optional manifest. externs usually comes from
// bridge.StandardDefs.
func Module(m *ir.Module, limits vm.Limits, externs map[uint32]bridge.Def, manifest *abi.Manifest) error {
	if err := limits.Check(); err != nil {
		return err
	}
	if len(m.Funcs) == 0 {
		return ErrNoFuncs
	}
	if err := checkCaps(m, limits); err != nil {
		return err
	}
	if err := checkConsts(m, limits); err != nil {
		return err
	}
	if err := checkOrder(m); err != nil {
		return err
	}
	if m.Entrypoint != nil {
		if _, ok := m.FuncByID(*m.Entrypoint); !ok {
			return fmt.Errorf("%w: id %d", ErrBadEntrypoint, *m.Entrypoint)
		}
	}
	for i := range m.Funcs {
		fn := &m.Funcs[i]
		if err := checkBlocks(m, fn, externs); err != nil {
			return fmt.Errorf("func %d: %w", fn.ID, err)
		}
		if err := simulate(m, fn, limits, externs); err != nil {
			return fmt.Errorf("func %d: %w", fn.ID, err)
		}
	}
	if err := checkCallGraph(m, limits); err != nil {
		return err
	}
	if manifest != nil {
		if err := checkManifest(m, manifest); err != nil {
			return err
		}
	}
	return nil
}

func checkCaps(m *ir.Module, limits vm.Limits) error {
	if len(m.Consts) > limits.MaxConsts {
		return fmt.Errorf("%w: %d constants", ErrCap, len(m.Consts))
	}
	if len(m.Funcs) > limits.MaxFuncs {
		return fmt.Errorf("%w: %d functions", ErrCap, len(m.Funcs))
	}
	for i := range m.Funcs {
		fn := &m.Funcs[i]
		if int(fn.ParamCount) > limits.MaxParams {
			return fmt.Errorf("%w: func %d has %d params", ErrCap, fn.ID, fn.ParamCount)
		}
		if len(fn.Blocks) > limits.MaxBlocks {
			return fmt.Errorf("%w: func %d has %d blocks", ErrCap, fn.ID, len(fn.Blocks))
		}
		for j := range fn.Blocks {
			if len(fn.Blocks[j].Code) > limits.MaxBlockInstrs {
				return fmt.Errorf("%w: func %d block %d has %d instrs", ErrCap, fn.ID, fn.Blocks[j].Label, len(fn.Blocks[j].Code))
			}
		}
	}
	return nil
}

func checkConsts(m *ir.Module, limits vm.Limits) error {
	for i, c := range m.Consts {
		switch c.Kind {
		case ir.ConstInt:
			if c.Int.BitLen() > limits.MaxIntBits {
				return fmt.Errorf("%w: const %d is %d bits", ErrConstTooBig, i, c.Int.BitLen())
			}
		case ir.ConstBytes:
			if len(c.Bytes) > limits.MaxBytesLen {
				return fmt.Errorf("%w: const %d is %d bytes", ErrConstTooBig, i, len(c.Bytes))
			}
		case ir.ConstTuple:
			if len(c.Tuple) > limits.MaxTupleLen {
				return fmt.Errorf("%w: const %d has %d elements", ErrConstTooBig, i, len(c.Tuple))
			}
			for _, e := range c.Tuple {
				if e.Kind == ir.ConstTuple {
					return fmt.Errorf("%w: const %d", ErrNestedTuple, i)
				}
			}
		}
	}
	return nil
}

// checkOrder re-verifies the ordering invariants the codec enforces, so
// hand-built modules get the same guarantees as decoded ones.
func checkOrder(m *ir.Module) error {
	for i := 1; i < len(m.Funcs); i++ {
		if m.Funcs[i].ID <= m.Funcs[i-1].ID {
			return fmt.Errorf("%w: %d after %d", ErrFuncOrder, m.Funcs[i].ID, m.Funcs[i-1].ID)
		}
	}
	for i := range m.Funcs {
		blocks := m.Funcs[i].Blocks
		for j := 1; j < len(blocks); j++ {
			if blocks[j].Label <= blocks[j-1].Label {
				return fmt.Errorf("%w: func %d: %d after %d", ErrBlockOrder, m.Funcs[i].ID, blocks[j].Label, blocks[j-1].Label)
			}
		}
	}
	return nil
}

// checkBlocks verifies operand ranges and terminator discipline: every
// opcode defined, every referenced constant, label, function, and extern
// present, argument counts matching, and exactly one terminator sitting at
// the end of each block.
func checkBlocks(m *ir.Module, fn *ir.Func, externs map[uint32]bridge.Def) error {
	for bi := range fn.Blocks {
		blk := &fn.Blocks[bi]
		if len(blk.Code) == 0 {
			return fmt.Errorf("block %d: %w", blk.Label, ErrEmptyBlock)
		}
		for ii, ins := range blk.Code {
			if !ins.Op.Valid() {
				return fmt.Errorf("block %d instr %d: %w: 0x%02x", blk.Label, ii, ErrBadOpcode, uint8(ins.Op))
			}
			last := ii == len(blk.Code)-1
			if ir.IsTerminator(ins.Op) && !last {
				return fmt.Errorf("block %d instr %d: %w", blk.Label, ii, ErrMidTerminator)
			}
			if last && !ir.IsTerminator(ins.Op) {
				return fmt.Errorf("block %d: %w: ends with %s", blk.Label, ErrNoTerminator, ins.Op)
			}
			switch ins.Op {
			case ir.OpPushConst:
				if ins.A >= uint32(len(m.Consts)) {
					return fmt.Errorf("block %d instr %d: %w: %d", blk.Label, ii, ErrConstRange, ins.A)
				}
			case ir.OpJump:
				if _, ok := fn.BlockIndex(ins.A); !ok {
					return fmt.Errorf("block %d instr %d: %w: %d", blk.Label, ii, ErrBadLabel, ins.A)
				}
			case ir.OpJumpI:
				if _, ok := fn.BlockIndex(ins.A); !ok {
					return fmt.Errorf("block %d instr %d: %w: %d", blk.Label, ii, ErrBadLabel, ins.A)
				}
				if _, ok := fn.BlockIndex(ins.B); !ok {
					return fmt.Errorf("block %d instr %d: %w: %d", blk.Label, ii, ErrBadLabel, ins.B)
				}
			case ir.OpCall:
				callee, ok := m.FuncByID(ins.A)
				if !ok {
					return fmt.Errorf("block %d instr %d: %w: %d", blk.Label, ii, ErrBadCallTarget, ins.A)
				}
				if ins.B != callee.ParamCount {
					return fmt.Errorf("block %d instr %d: %w: func %d wants %d, call passes %d", blk.Label, ii, ErrArgCount, ins.A, callee.ParamCount, ins.B)
				}
			case ir.OpCallExtern:
				def, ok := externs[ins.A]
				if !ok {
					return fmt.Errorf("block %d instr %d: %w: %d", blk.Label, ii, ErrBadExtern, ins.A)
				}
				if int(ins.B) != len(def.Params) {
					return fmt.Errorf("block %d instr %d: %w: extern %s wants %d, call passes %d", blk.Label, ii, ErrArgCount, def.Name, len(def.Params), ins.B)
				}
			}
		}
	}
	return nil
}

// simulate runs the symbolic stack-height analysis for one function: the
// entry block starts at the parameter count, every edge must agree on the
// height it delivers, RET must see exactly the return count, and every
// block must be reached.
func simulate(m *ir.Module, fn *ir.Func, limits vm.Limits, externs map[uint32]bridge.Def) error {
	heights := make(map[uint32]int, len(fn.Blocks))
	entry := fn.Blocks[0].Label
	heights[entry] = int(fn.ParamCount)
	work := []uint32{entry}

	setHeight := func(label uint32, h int) error {
		if prev, ok := heights[label]; ok {
			if prev != h {
				return fmt.Errorf("block %d: %w: %d vs %d", label, ErrHeightMismatch, prev, h)
			}
			return nil
		}
		heights[label] = h
		work = append(work, label)
		return nil
	}

	done := make(map[uint32]bool, len(fn.Blocks))
	for len(work) > 0 {
		label := work[len(work)-1]
		work = work[:len(work)-1]
		if done[label] {
			continue
		}
		done[label] = true

		bi, _ := fn.BlockIndex(label)
		blk := &fn.Blocks[bi]
		h := heights[label]
		for ii, ins := range blk.Code {
			pops, pushes := instrEffect(m, fn, externs, ins)
			if need := depthRequired(ins); need > h {
				return fmt.Errorf("block %d instr %d: %w: %s needs depth %d, have %d", label, ii, ErrStackUnderflow, ins.Op, need, h)
			}
			if pops > h {
				return fmt.Errorf("block %d instr %d: %w: %s pops %d, have %d", label, ii, ErrStackUnderflow, ins.Op, pops, h)
			}
			h = h - pops + pushes
			if h > limits.MaxStackHeight {
				return fmt.Errorf("block %d instr %d: %w: height %d", label, ii, ErrStackOverflow, h)
			}
		}

		term := blk.Code[len(blk.Code)-1]
		switch term.Op {
		case ir.OpJump:
			if err := setHeight(term.A, h); err != nil {
				return err
			}
		case ir.OpJumpI:
			if err := setHeight(term.A, h); err != nil {
				return err
			}
			if err := setHeight(term.B, h); err != nil {
				return err
			}
		case ir.OpRet:
			if h != 0 {
				return fmt.Errorf("block %d: %w: %d left after popping returns", label, ErrRetHeight, h)
			}
		case ir.OpRevert:
			// Height already accounted for by the pop above.
		}
	}

	for i := range fn.Blocks {
		if !done[fn.Blocks[i].Label] {
			return fmt.Errorf("block %d: %w", fn.Blocks[i].Label, ErrUnreachable)
		}
	}
	return nil
}

// depthRequired returns the stack depth an instruction touches beyond
// plain pops: PICK reads A+1 below the top.
func depthRequired(ins ir.Instr) int {
	if ins.Op == ir.OpPick {
		return int(ins.A) + 1
	}
	return 0
}

// instrEffect resolves the context-dependent stack effects. Operand ranges
// were checked before simulation, so lookups here cannot miss.
func instrEffect(m *ir.Module, fn *ir.Func, externs map[uint32]bridge.Def, ins ir.Instr) (pops, pushes int) {
	eff := ir.Effect(ins.Op)
	pops, pushes = eff.Pops, eff.Pushes
	switch ins.Op {
	case ir.OpPushConst:
		pushes = m.Consts[ins.A].Arity()
	case ir.OpRet:
		pops = int(fn.ReturnCount)
	case ir.OpCall:
		callee, _ := m.FuncByID(ins.A)
		pops = int(ins.B)
		pushes = int(callee.ReturnCount)
	case ir.OpCallExtern:
		pops = int(ins.B)
		pushes = len(externs[ins.A].Returns)
	}
	return pops, pushes
}

// checkCallGraph rejects recursion and bounds the static call depth. The
// walk starts from every function so unexported helpers are covered too.
func checkCallGraph(m *ir.Module, limits vm.Limits) error {
	const (
		unvisited = 0
		inStack   = 1
		finished  = 2
	)
	state := make(map[uint32]int, len(m.Funcs))
	depth := make(map[uint32]int, len(m.Funcs))

	var visit func(fid uint32) error
	visit = func(fid uint32) error {
		switch state[fid] {
		case inStack:
			return fmt.Errorf("%w: func %d", ErrRecursion, fid)
		case finished:
			return nil
		}
		state[fid] = inStack
		fn, _ := m.FuncByID(fid)
		var max int
		for bi := range fn.Blocks {
			for _, ins := range fn.Blocks[bi].Code {
				if ins.Op != ir.OpCall {
					continue
				}
				if err := visit(ins.A); err != nil {
					return err
				}
				if d := depth[ins.A]; d > max {
					max = d
				}
			}
		}
		depth[fid] = max + 1
		if depth[fid] > limits.MaxCallDepth {
			return fmt.Errorf("%w: func %d reaches depth %d", ErrCallDepth, fid, depth[fid])
		}
		state[fid] = finished
		return nil
	}

	for i := range m.Funcs {
		if err := visit(m.Funcs[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// checkManifest verifies that every exported entry dispatches to an
// existing function with matching arity, and that selectors are unique.
func checkManifest(m *ir.Module, manifest *abi.Manifest) error {
	if _, err := manifest.BuildIndex(); err != nil {
		return err
	}
	for i := range manifest.Functions {
		f := &manifest.Functions[i]
		fn, ok := m.FuncByID(f.FuncID)
		if !ok {
			return fmt.Errorf("%w: %s names func %d", ErrManifestFunc, f.Name, f.FuncID)
		}
		if uint32(len(f.Params)) != fn.ParamCount {
			return fmt.Errorf("%w: %s has %d params, func %d takes %d", ErrManifestFunc, f.Name, len(f.Params), f.FuncID, fn.ParamCount)
		}
		if uint32(len(f.Returns)) != fn.ReturnCount {
			return fmt.Errorf("%w: %s has %d returns, func %d yields %d", ErrManifestFunc, f.Name, len(f.Returns), f.FuncID, fn.ReturnCount)
		}
	}
	return nil
}

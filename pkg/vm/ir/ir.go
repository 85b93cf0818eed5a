// Package ir defines the portable bytecode representation executed by the
// Ember VM: a module of functions, each a set of labeled basic blocks of
// fixed-operand instructions, plus a constant pool.
//
// A Module is plain data. After validation it is immutable and may be shared
// read-only by any number of concurrent executions.
package ir

import (
	"fmt"
	"math/big"
	"sort"
)

// Version is the current module format version.
const Version = 1

// ConstKind tags a constant pool entry.
type ConstKind uint8

// Constant kinds.
const (
	ConstInt ConstKind = iota
	ConstBytes
	ConstTuple
)

// Const is one constant pool entry: an integer, a byte string, or a small
// tuple of scalar constants. Tuples may not nest.
type Const struct {
	Kind  ConstKind
	Int   *big.Int
	Bytes []byte
	Tuple []Const
}

// IntConst builds an integer constant.
func IntConst(n int64) Const {
	return Const{Kind: ConstInt, Int: big.NewInt(n)}
}

// BigConst builds an integer constant from a big integer.
func BigConst(n *big.Int) Const {
	return Const{Kind: ConstInt, Int: n}
}

// BytesConst builds a bytes constant.
func BytesConst(b []byte) Const {
	return Const{Kind: ConstBytes, Bytes: b}
}

// TupleConst builds a tuple constant from scalar elements.
func TupleConst(elems ...Const) Const {
	return Const{Kind: ConstTuple, Tuple: elems}
}

// Arity returns the number of stack slots pushing this constant produces.
func (c Const) Arity() int {
	if c.Kind == ConstTuple {
		return len(c.Tuple)
	}
	return 1
}

// Equal reports deep equality of two constants.
func (c Const) Equal(o Const) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstInt:
		return c.Int.Cmp(o.Int) == 0
	case ConstBytes:
		if len(c.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range c.Bytes {
			if c.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	default:
		if len(c.Tuple) != len(o.Tuple) {
			return false
		}
		for i := range c.Tuple {
			if !c.Tuple[i].Equal(o.Tuple[i]) {
				return false
			}
		}
		return true
	}
}

// Instr is one instruction: an opcode plus up to two integer operands. The
// meaning of A and B is fixed per opcode (constant index, function id,
// extern id, block label, or stack position).
type Instr struct {
	Op Opcode
	A  uint32
	B  uint32
}

// Block is a labeled basic block. Control enters only at the top and leaves
// only through the terminator instruction at the end; there is no
// fallthrough between blocks.
type Block struct {
	Label uint32
	Code  []Instr
}

// Func is one function: a signature plus its blocks, stored in ascending
// label order. The entry block is the first one.
type Func struct {
	ID          uint32
	ParamCount  uint32
	ReturnCount uint32
	Blocks      []Block
}

// BlockIndex returns the index of the block with the given label, or false.
// Blocks are kept sorted by label, which the codec enforces on decode.
func (f *Func) BlockIndex(label uint32) (int, bool) {
	i := sort.Search(len(f.Blocks), func(i int) bool {
		return f.Blocks[i].Label >= label
	})
	if i < len(f.Blocks) && f.Blocks[i].Label == label {
		return i, true
	}
	return 0, false
}

// Module is a complete bytecode unit. Funcs are stored in ascending id
// order; the ordering is part of the canonical encoding.
type Module struct {
	Version    uint32
	Consts     []Const
	Funcs      []Func
	Entrypoint *uint32
}

// FuncByID returns the function with the given id, or false.
func (m *Module) FuncByID(id uint32) (*Func, bool) {
	i := sort.Search(len(m.Funcs), func(i int) bool {
		return m.Funcs[i].ID >= id
	})
	if i < len(m.Funcs) && m.Funcs[i].ID == id {
		return &m.Funcs[i], true
	}
	return nil, false
}

// Equal reports deep equality of two modules.
func (m *Module) Equal(o *Module) bool {
	if m.Version != o.Version ||
		len(m.Consts) != len(o.Consts) ||
		len(m.Funcs) != len(o.Funcs) {
		return false
	}
	if (m.Entrypoint == nil) != (o.Entrypoint == nil) {
		return false
	}
	if m.Entrypoint != nil && *m.Entrypoint != *o.Entrypoint {
		return false
	}
	for i := range m.Consts {
		if !m.Consts[i].Equal(o.Consts[i]) {
			return false
		}
	}
	for i := range m.Funcs {
		f, g := &m.Funcs[i], &o.Funcs[i]
		if f.ID != g.ID || f.ParamCount != g.ParamCount ||
			f.ReturnCount != g.ReturnCount || len(f.Blocks) != len(g.Blocks) {
			return false
		}
		for j := range f.Blocks {
			b, c := &f.Blocks[j], &g.Blocks[j]
			if b.Label != c.Label || len(b.Code) != len(c.Code) {
				return false
			}
			for k := range b.Code {
				if b.Code[k] != c.Code[k] {
					return false
				}
			}
		}
	}
	return true
}

// String renders an instruction for diagnostics.
func (in Instr) String() string {
	switch OperandCount(in.Op) {
	case 0:
		return in.Op.String()
	case 1:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	default:
		return fmt.Sprintf("%s %d %d", in.Op, in.A, in.B)
	}
}

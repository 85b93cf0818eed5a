// Package codec serializes bytecode modules to and from their canonical
// binary form.
//
// The encoding is self-describing and unique: funcs and blocks appear in
// ascending id order, every integer is a minimal-form varint, and decode
// rejects any deviation, so decode(encode(m)) == m holds byte-for-byte and
// no two distinct byte strings decode to the same module.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/emberchain/ember/pkg/vm/ir"
)

// Magic identifies an Ember module blob.
var Magic = []byte{'E', 'M', 'B', 'R'}

// MaxModuleSize caps the size of an encoded module.
const MaxModuleSize = 10 * 1024 * 1024

// maxConstIntLen caps the encoded length of an integer constant.
const maxConstIntLen = 40

var (
	// ErrBadMagic is returned when the header magic is wrong.
	ErrBadMagic = errors.New("bad module magic")

	// ErrVersion is returned for an unsupported format version.
	ErrVersion = errors.New("unsupported module version")

	// ErrTooLarge is returned when the blob exceeds MaxModuleSize.
	ErrTooLarge = errors.New("module blob too large")

	// ErrTrailing is returned when decode succeeds but bytes remain.
	ErrTrailing = errors.New("trailing bytes after module")

	// ErrOrder is returned when funcs or blocks are out of ascending order.
	ErrOrder = errors.New("ids not in ascending order")

	// ErrBadConst is returned for a malformed constant entry.
	ErrBadConst = errors.New("malformed constant")

	// ErrBadInstr is returned for an unknown opcode.
	ErrBadInstr = errors.New("unknown opcode")

	// ErrLength is returned for a length prefix exceeding the input.
	ErrLength = errors.New("length prefix out of range")
)

// Encode serializes a module to its canonical binary form. It fails if the
// module's funcs or blocks are not already in ascending id order, since the
// ordering is part of the module's identity, not something the codec may
// repair silently.
func Encode(m *ir.Module) ([]byte, error) {
	out := make([]byte, 0, 256)
	out = append(out, Magic...)
	out = AppendUvarint(out, uint64(m.Version))

	out = AppendUvarint(out, uint64(len(m.Consts)))
	for i, c := range m.Consts {
		var err error
		out, err = appendConst(out, c, false)
		if err != nil {
			return nil, fmt.Errorf("const %d: %w", i, err)
		}
	}

	out = AppendUvarint(out, uint64(len(m.Funcs)))
	var prevID uint32
	for i := range m.Funcs {
		f := &m.Funcs[i]
		if i > 0 && f.ID <= prevID {
			return nil, fmt.Errorf("fn%d: %w", f.ID, ErrOrder)
		}
		prevID = f.ID
		var err error
		out, err = appendFunc(out, f)
		if err != nil {
			return nil, fmt.Errorf("fn%d: %w", f.ID, err)
		}
	}

	if m.Entrypoint != nil {
		out = append(out, 1)
		out = AppendUvarint(out, uint64(*m.Entrypoint))
	} else {
		out = append(out, 0)
	}

	if len(out) > MaxModuleSize {
		return nil, ErrTooLarge
	}
	return out, nil
}

func appendConst(out []byte, c ir.Const, nested bool) ([]byte, error) {
	switch c.Kind {
	case ir.ConstInt:
		if c.Int == nil {
			return nil, ErrBadConst
		}
		out = append(out, byte(ir.ConstInt))
		out = AppendUbig(out, ZigZag(c.Int))
		return out, nil
	case ir.ConstBytes:
		out = append(out, byte(ir.ConstBytes))
		out = AppendUvarint(out, uint64(len(c.Bytes)))
		return append(out, c.Bytes...), nil
	case ir.ConstTuple:
		if nested {
			return nil, fmt.Errorf("%w: nested tuple", ErrBadConst)
		}
		out = append(out, byte(ir.ConstTuple))
		out = AppendUvarint(out, uint64(len(c.Tuple)))
		for _, e := range c.Tuple {
			var err error
			out, err = appendConst(out, e, true)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, ErrBadConst
	}
}

func appendFunc(out []byte, f *ir.Func) ([]byte, error) {
	out = AppendUvarint(out, uint64(f.ID))
	out = AppendUvarint(out, uint64(f.ParamCount))
	out = AppendUvarint(out, uint64(f.ReturnCount))
	out = AppendUvarint(out, uint64(len(f.Blocks)))
	var prevLabel uint32
	for i := range f.Blocks {
		b := &f.Blocks[i]
		if i > 0 && b.Label <= prevLabel {
			return nil, fmt.Errorf("L%d: %w", b.Label, ErrOrder)
		}
		prevLabel = b.Label
		out = AppendUvarint(out, uint64(b.Label))
		out = AppendUvarint(out, uint64(len(b.Code)))
		for _, in := range b.Code {
			if !in.Op.Valid() {
				return nil, fmt.Errorf("op 0x%02x: %w", byte(in.Op), ErrBadInstr)
			}
			out = append(out, byte(in.Op))
			switch ir.OperandCount(in.Op) {
			case 1:
				out = AppendUvarint(out, uint64(in.A))
			case 2:
				out = AppendUvarint(out, uint64(in.A))
				out = AppendUvarint(out, uint64(in.B))
			}
		}
	}
	return out, nil
}

// Decode parses a canonical module blob. Any non-canonical input — wrong
// magic, overlong varints, out-of-order ids, unknown opcodes, lengths past
// the end of input, or trailing bytes — is rejected.
func Decode(data []byte) (*ir.Module, error) {
	if len(data) > MaxModuleSize {
		return nil, ErrTooLarge
	}
	d := &decoder{data: data}
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, ErrBadMagic
	}
	d.pos = len(Magic)

	version, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if version != ir.Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	m := &ir.Module{Version: uint32(version)}

	nconsts, err := d.count("consts")
	if err != nil {
		return nil, err
	}
	m.Consts = make([]ir.Const, 0, nconsts)
	for i := 0; i < nconsts; i++ {
		c, err := d.constant(false)
		if err != nil {
			return nil, fmt.Errorf("const %d: %w", i, err)
		}
		m.Consts = append(m.Consts, c)
	}

	nfuncs, err := d.count("funcs")
	if err != nil {
		return nil, err
	}
	m.Funcs = make([]ir.Func, 0, nfuncs)
	var prevID uint32
	for i := 0; i < nfuncs; i++ {
		f, err := d.function()
		if err != nil {
			return nil, fmt.Errorf("fn index %d: %w", i, err)
		}
		if i > 0 && f.ID <= prevID {
			return nil, fmt.Errorf("fn%d: %w", f.ID, ErrOrder)
		}
		prevID = f.ID
		m.Funcs = append(m.Funcs, f)
	}

	flag, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
	case 1:
		ep, err := d.u32("entrypoint")
		if err != nil {
			return nil, err
		}
		m.Entrypoint = &ep
	default:
		return nil, fmt.Errorf("entrypoint flag 0x%02x: %w", flag, ErrBadConst)
	}

	if d.pos != len(d.data) {
		return nil, ErrTrailing
	}
	return m, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrTruncated
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n, err := ReadUvarint(d.data[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	v, err := d.uvarint()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("%s: %w", what, ErrVarintOverflow)
	}
	return uint32(v), nil
}

// count reads a collection length, bounded by the remaining input so a
// hostile length prefix cannot force a huge allocation.
func (d *decoder) count(what string) (int, error) {
	v, err := d.uvarint()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	if v > uint64(len(d.data)-d.pos) {
		return 0, fmt.Errorf("%s: %w", what, ErrLength)
	}
	return int(v), nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n > len(d.data)-d.pos {
		return nil, ErrLength
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) constant(nested bool) (ir.Const, error) {
	tag, err := d.byte()
	if err != nil {
		return ir.Const{}, err
	}
	switch ir.ConstKind(tag) {
	case ir.ConstInt:
		raw, n, err := ReadUbig(d.data[d.pos:], maxConstIntLen)
		if err != nil {
			return ir.Const{}, err
		}
		d.pos += n
		return ir.Const{Kind: ir.ConstInt, Int: UnZigZag(raw)}, nil
	case ir.ConstBytes:
		n, err := d.count("bytes const")
		if err != nil {
			return ir.Const{}, err
		}
		raw, err := d.take(n)
		if err != nil {
			return ir.Const{}, err
		}
		b := make([]byte, n)
		copy(b, raw)
		return ir.Const{Kind: ir.ConstBytes, Bytes: b}, nil
	case ir.ConstTuple:
		if nested {
			return ir.Const{}, fmt.Errorf("%w: nested tuple", ErrBadConst)
		}
		n, err := d.count("tuple const")
		if err != nil {
			return ir.Const{}, err
		}
		elems := make([]ir.Const, 0, n)
		for i := 0; i < n; i++ {
			e, err := d.constant(true)
			if err != nil {
				return ir.Const{}, err
			}
			elems = append(elems, e)
		}
		return ir.Const{Kind: ir.ConstTuple, Tuple: elems}, nil
	default:
		return ir.Const{}, fmt.Errorf("tag 0x%02x: %w", tag, ErrBadConst)
	}
}

func (d *decoder) function() (ir.Func, error) {
	var f ir.Func
	var err error
	if f.ID, err = d.u32("fn id"); err != nil {
		return f, err
	}
	if f.ParamCount, err = d.u32("param count"); err != nil {
		return f, err
	}
	if f.ReturnCount, err = d.u32("return count"); err != nil {
		return f, err
	}
	nblocks, err := d.count("blocks")
	if err != nil {
		return f, err
	}
	f.Blocks = make([]ir.Block, 0, nblocks)
	var prevLabel uint32
	for i := 0; i < nblocks; i++ {
		b, err := d.block()
		if err != nil {
			return f, err
		}
		if i > 0 && b.Label <= prevLabel {
			return f, fmt.Errorf("L%d: %w", b.Label, ErrOrder)
		}
		prevLabel = b.Label
		f.Blocks = append(f.Blocks, b)
	}
	return f, nil
}

func (d *decoder) block() (ir.Block, error) {
	var b ir.Block
	var err error
	if b.Label, err = d.u32("label"); err != nil {
		return b, err
	}
	ninstrs, err := d.count("instrs")
	if err != nil {
		return b, err
	}
	b.Code = make([]ir.Instr, 0, ninstrs)
	for i := 0; i < ninstrs; i++ {
		opByte, err := d.byte()
		if err != nil {
			return b, err
		}
		op := ir.Opcode(opByte)
		if !op.Valid() {
			return b, fmt.Errorf("op 0x%02x: %w", opByte, ErrBadInstr)
		}
		in := ir.Instr{Op: op}
		switch ir.OperandCount(op) {
		case 1:
			if in.A, err = d.u32(op.String()); err != nil {
				return b, err
			}
		case 2:
			if in.A, err = d.u32(op.String()); err != nil {
				return b, err
			}
			if in.B, err = d.u32(op.String()); err != nil {
				return b, err
			}
		}
		b.Code = append(b.Code, in)
	}
	return b, nil
}

package abi

import (
	"errors"
	"fmt"

	"github.com/emberchain/ember/internal/types"
	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/codec"
)

var (
	// ErrKindMismatch is returned when a value's runtime kind does not
	// match the declared ABI type.
	ErrKindMismatch = errors.New("abi value kind mismatch")

	// ErrArity is returned when the number of values does not match the
	// number of declared types.
	ErrArity = errors.New("abi arity mismatch")

	// ErrAddressLen is returned when an address value is not exactly 33
	// bytes.
	ErrAddressLen = errors.New("abi address must be 33 bytes")
)

// AppendValue appends the canonical encoding of v as type t to dst.
//
// Scalar types encode their native VM value. Composite types (list, tuple)
// have no native VM representation; their value must be a bytes value
// already holding the canonical encoding of the composite, which is
// verified structurally before being appended.
func AppendValue(dst []byte, t Type, v vm.Value) ([]byte, error) {
	switch t.Kind {
	case TBool:
		b, ok := v.Bool()
		if !ok {
			return nil, fmt.Errorf("%w: want bool, have %s", ErrKindMismatch, v.Kind())
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil

	case TInt:
		n, ok := v.Int()
		if !ok {
			return nil, fmt.Errorf("%w: want int, have %s", ErrKindMismatch, v.Kind())
		}
		return codec.AppendUbig(dst, codec.ZigZag(n)), nil

	case TBytes:
		b, ok := v.Bytes()
		if !ok {
			return nil, fmt.Errorf("%w: want bytes, have %s", ErrKindMismatch, v.Kind())
		}
		dst = codec.AppendUvarint(dst, uint64(len(b)))
		return append(dst, b...), nil

	case TAddress:
		b, ok := v.Bytes()
		if !ok {
			return nil, fmt.Errorf("%w: want address, have %s", ErrKindMismatch, v.Kind())
		}
		if len(b) != types.AddressSize {
			return nil, fmt.Errorf("%w: have %d", ErrAddressLen, len(b))
		}
		dst = codec.AppendUvarint(dst, uint64(len(b)))
		return append(dst, b...), nil

	case TList, TTuple:
		b, ok := v.Bytes()
		if !ok {
			return nil, fmt.Errorf("%w: want %s blob, have %s", ErrKindMismatch, t, v.Kind())
		}
		if err := checkComposite(b, t); err != nil {
			return nil, err
		}
		return append(dst, b...), nil

	default:
		return nil, fmt.Errorf("%w: kind %d", ErrBadType, uint8(t.Kind))
	}
}

// checkComposite verifies that b is exactly one canonical encoding of t.
func checkComposite(b []byte, t Type) error {
	n, err := skipValue(b, t)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("%w: %d trailing bytes in %s blob", ErrTrailing, len(b)-n, t)
	}
	return nil
}

// EncodeTuple encodes a sequence of values against their declared types,
// concatenated with no framing.
func EncodeTuple(ts []Type, vs []vm.Value) ([]byte, error) {
	if len(ts) != len(vs) {
		return nil, fmt.Errorf("%w: %d types, %d values", ErrArity, len(ts), len(vs))
	}
	var dst []byte
	var err error
	for i, t := range ts {
		dst, err = AppendValue(dst, t, vs[i])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return dst, nil
}

// EncodeList encodes a count-prefixed homogeneous list.
func EncodeList(elem Type, vs []vm.Value) ([]byte, error) {
	dst := codec.AppendUvarint(nil, uint64(len(vs)))
	var err error
	for i, v := range vs {
		dst, err = AppendValue(dst, elem, v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return dst, nil
}

// EncodeCall builds a call payload: selector followed by the argument tuple.
func EncodeCall(sel Selector, params []Type, args []vm.Value) ([]byte, error) {
	body, err := EncodeTuple(params, args)
	if err != nil {
		return nil, err
	}
	return append(sel[:], body...), nil
}

// EncodeReturn builds a return payload: the bare return tuple.
func EncodeReturn(rets []Type, vs []vm.Value) ([]byte, error) {
	return EncodeTuple(rets, vs)
}

// EncodeEvent builds an event payload: length-prefixed topic followed by the
// argument tuple.
func EncodeEvent(topic []byte, ts []Type, vs []vm.Value) ([]byte, error) {
	body, err := EncodeTuple(ts, vs)
	if err != nil {
		return nil, err
	}
	dst := codec.AppendUvarint(nil, uint64(len(topic)))
	dst = append(dst, topic...)
	return append(dst, body...), nil
}

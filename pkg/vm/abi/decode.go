package abi

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/emberchain/ember/internal/types"
	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/codec"
)

var (
	// ErrTrailing is returned when a payload has bytes left after its
	// declared content.
	ErrTrailing = errors.New("abi trailing bytes")

	// ErrBadBool is returned for a boolean byte other than 0x00 or 0x01.
	ErrBadBool = errors.New("abi boolean must be 0x00 or 0x01")

	// ErrShortPayload is returned when a call payload is shorter than a
	// selector.
	ErrShortPayload = errors.New("abi payload shorter than selector")
)

// maxIntLen caps the encoded length of a single integer, matching the
// module codec's bound for integer constants.
const maxIntLen = 40

// decodeValue decodes one value of type t from the front of data and
// returns it with the number of bytes consumed. Composite values are
// returned as bytes values holding their canonical encoding.
func decodeValue(data []byte, t Type) (vm.Value, int, error) {
	switch t.Kind {
	case TBool:
		if len(data) == 0 {
			return vm.Value{}, 0, codec.ErrTruncated
		}
		switch data[0] {
		case 0:
			return vm.BoolValue(false), 1, nil
		case 1:
			return vm.BoolValue(true), 1, nil
		default:
			return vm.Value{}, 0, fmt.Errorf("%w: 0x%02x", ErrBadBool, data[0])
		}

	case TInt:
		u, n, err := codec.ReadUbig(data, maxIntLen)
		if err != nil {
			return vm.Value{}, 0, err
		}
		return vm.IntValue(codec.UnZigZag(u)), n, nil

	case TBytes:
		b, n, err := readBlob(data)
		if err != nil {
			return vm.Value{}, 0, err
		}
		return vm.BytesValue(b), n, nil

	case TAddress:
		b, n, err := readBlob(data)
		if err != nil {
			return vm.Value{}, 0, err
		}
		if len(b) != types.AddressSize {
			return vm.Value{}, 0, fmt.Errorf("%w: have %d", ErrAddressLen, len(b))
		}
		return vm.BytesValue(b), n, nil

	case TList, TTuple:
		n, err := skipValue(data, t)
		if err != nil {
			return vm.Value{}, 0, err
		}
		blob := make([]byte, n)
		copy(blob, data[:n])
		return vm.BytesValue(blob), n, nil

	default:
		return vm.Value{}, 0, fmt.Errorf("%w: kind %d", ErrBadType, uint8(t.Kind))
	}
}

// readBlob reads a length-prefixed byte string, copying it out of data.
func readBlob(data []byte) ([]byte, int, error) {
	ln, n, err := codec.ReadUvarint(data)
	if err != nil {
		return nil, 0, err
	}
	if ln > uint64(len(data)-n) {
		return nil, 0, codec.ErrTruncated
	}
	b := make([]byte, ln)
	copy(b, data[n:n+int(ln)])
	return b, n + int(ln), nil
}

// skipValue walks one encoded value of type t and returns its length,
// validating structure without materializing values.
func skipValue(data []byte, t Type) (int, error) {
	switch t.Kind {
	case TBool:
		if len(data) == 0 {
			return 0, codec.ErrTruncated
		}
		if data[0] > 1 {
			return 0, fmt.Errorf("%w: 0x%02x", ErrBadBool, data[0])
		}
		return 1, nil

	case TInt:
		_, n, err := codec.ReadUbig(data, maxIntLen)
		return n, err

	case TBytes, TAddress:
		ln, n, err := codec.ReadUvarint(data)
		if err != nil {
			return 0, err
		}
		if ln > uint64(len(data)-n) {
			return 0, codec.ErrTruncated
		}
		if t.Kind == TAddress && ln != types.AddressSize {
			return 0, fmt.Errorf("%w: have %d", ErrAddressLen, ln)
		}
		return n + int(ln), nil

	case TList:
		count, n, err := codec.ReadUvarint(data)
		if err != nil {
			return 0, err
		}
		if count > uint64(len(data)-n) {
			return 0, codec.ErrTruncated
		}
		off := n
		for i := uint64(0); i < count; i++ {
			sz, err := skipValue(data[off:], *t.Elem)
			if err != nil {
				return 0, fmt.Errorf("element %d: %w", i, err)
			}
			off += sz
		}
		return off, nil

	case TTuple:
		off := 0
		for i, f := range t.Fields {
			sz, err := skipValue(data[off:], f)
			if err != nil {
				return 0, fmt.Errorf("field %d: %w", i, err)
			}
			off += sz
		}
		return off, nil

	default:
		return 0, fmt.Errorf("%w: kind %d", ErrBadType, uint8(t.Kind))
	}
}

// DecodeTuple decodes a bare tuple of the given types, requiring the input
// to be consumed exactly.
func DecodeTuple(data []byte, ts []Type) ([]vm.Value, error) {
	vs := make([]vm.Value, 0, len(ts))
	off := 0
	for i, t := range ts {
		v, n, err := decodeValue(data[off:], t)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		vs = append(vs, v)
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailing, len(data)-off)
	}
	return vs, nil
}

// DecodeList decodes a count-prefixed homogeneous list, requiring the input
// to be consumed exactly.
func DecodeList(data []byte, elem Type) ([]vm.Value, error) {
	count, off, err := codec.ReadUvarint(data)
	if err != nil {
		return nil, err
	}
	if count > uint64(len(data)-off) {
		return nil, codec.ErrTruncated
	}
	vs := make([]vm.Value, 0, count)
	for i := uint64(0); i < count; i++ {
		v, n, err := decodeValue(data[off:], elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		vs = append(vs, v)
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailing, len(data)-off)
	}
	return vs, nil
}

// SplitCall separates a call payload into its selector and argument bytes.
func SplitCall(payload []byte) (Selector, []byte, error) {
	if len(payload) < SelectorSize {
		return Selector{}, nil, ErrShortPayload
	}
	var sel Selector
	copy(sel[:], payload[:SelectorSize])
	return sel, payload[SelectorSize:], nil
}

// DecodeCall resolves a call payload against a manifest index and decodes
// its arguments.
func DecodeCall(payload []byte, idx Index) (*Function, []vm.Value, error) {
	sel, body, err := SplitCall(payload)
	if err != nil {
		return nil, nil, err
	}
	fn, err := idx.Lookup(sel)
	if err != nil {
		return nil, nil, err
	}
	args, err := DecodeTuple(body, fn.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("call %s: %w", fn.Name, err)
	}
	return fn, args, nil
}

// DecodeReturn decodes a return payload against declared return types.
func DecodeReturn(data []byte, rets []Type) ([]vm.Value, error) {
	return DecodeTuple(data, rets)
}

// DecodeEvent splits an event payload into topic and argument bytes and
// decodes the arguments.
func DecodeEvent(data []byte, ts []Type) (topic []byte, args []vm.Value, err error) {
	topic, n, err := readBlob(data)
	if err != nil {
		return nil, nil, err
	}
	args, err = DecodeTuple(data[n:], ts)
	if err != nil {
		return nil, nil, err
	}
	return topic, args, nil
}

// DecodeInt decodes a single bare integer, used by externs that pass
// scalars outside tuples.
func DecodeInt(data []byte) (*big.Int, error) {
	u, n, err := codec.ReadUbig(data, maxIntLen)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailing, len(data)-n)
	}
	return codec.UnZigZag(u), nil
}

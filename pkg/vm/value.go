// Package vm defines the runtime value model and resource limits shared by
// the Ember execution engine, its validator, and the ABI codec.
package vm

import (
	"bytes"
	"fmt"
	"math/big"
)

// Kind tags a runtime value.
type Kind uint8

// Value kinds. There are no floats and no reference types.
const (
	KindInt Kind = iota
	KindBool
	KindBytes
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a runtime operand: a tagged union of int, bool, and bytes.
// Values are never persisted; storage and wire formats go through the ABI.
type Value struct {
	kind Kind
	num  *big.Int
	flag bool
	data []byte
}

// IntValue wraps a big integer. The caller must not mutate n afterwards.
func IntValue(n *big.Int) Value {
	return Value{kind: KindInt, num: n}
}

// Int64Value wraps a small integer.
func Int64Value(n int64) Value {
	return Value{kind: KindInt, num: big.NewInt(n)}
}

// BoolValue wraps a boolean.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// BytesValue wraps a byte string. The caller must not mutate b afterwards.
func BytesValue(b []byte) Value {
	return Value{kind: KindBytes, data: b}
}

// Kind returns the value's kind tag.
func (v Value) Kind() Kind {
	return v.kind
}

// Int returns the integer payload, or false if the value is not an int.
func (v Value) Int() (*big.Int, bool) {
	if v.kind != KindInt {
		return nil, false
	}
	return v.num, true
}

// Bool returns the boolean payload, or false if the value is not a bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

// Bytes returns the bytes payload, or false if the value is not bytes.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.data, true
}

// Equal reports deep equality of two values, including kind.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.num.Cmp(o.num) == 0
	case KindBool:
		return v.flag == o.flag
	default:
		return bytes.Equal(v.data, o.data)
	}
}

// String renders the value for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return v.num.String()
	case KindBool:
		if v.flag {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("0x%x", v.data)
	}
}

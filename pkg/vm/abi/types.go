// Package abi implements the argument/return encoding of the Ember VM:
// stable 8-byte function selectors, strict value codecs for call, return,
// and event payloads, and the contract manifest they are derived from.
//
// Type descriptors are known from the manifest and never encoded on the
// wire. Decoding is strict everywhere: unknown selectors, wrong arity, and
// malformed or non-minimal integers are errors, never best-effort guesses.
package abi

import (
	"errors"
	"fmt"
	"strings"
)

// TypeKind tags a type descriptor.
type TypeKind uint8

// Type kinds.
const (
	TBool TypeKind = iota
	TInt
	TBytes
	TAddress
	TList
	TTuple
)

// Type describes one ABI type. Elem is set for lists, Fields for tuples.
type Type struct {
	Kind   TypeKind
	Elem   *Type
	Fields []Type
}

// Convenience constructors for the scalar types.
var (
	Bool    = Type{Kind: TBool}
	Int     = Type{Kind: TInt}
	Bytes   = Type{Kind: TBytes}
	Address = Type{Kind: TAddress}
)

// List builds a list type.
func List(elem Type) Type {
	e := elem
	return Type{Kind: TList, Elem: &e}
}

// Tuple builds a tuple type.
func Tuple(fields ...Type) Type {
	return Type{Kind: TTuple, Fields: fields}
}

// String renders the canonical textual form used in signatures.
func (t Type) String() string {
	switch t.Kind {
	case TBool:
		return "bool"
	case TInt:
		return "int"
	case TBytes:
		return "bytes"
	case TAddress:
		return "address"
	case TList:
		return "list<" + t.Elem.String() + ">"
	case TTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "tuple(" + strings.Join(parts, ",") + ")"
	default:
		return fmt.Sprintf("type(%d)", uint8(t.Kind))
	}
}

// Scalar reports whether t maps to a single native VM value.
func (t Type) Scalar() bool {
	switch t.Kind {
	case TBool, TInt, TBytes, TAddress:
		return true
	default:
		return false
	}
}

// ErrBadType is returned when a textual type name cannot be parsed.
var ErrBadType = errors.New("malformed abi type")

// ParseType parses the canonical textual form, e.g. "list<tuple(int,bytes)>".
func ParseType(s string) (Type, error) {
	t, rest, err := parseType(strings.TrimSpace(s))
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("%w: trailing %q", ErrBadType, rest)
	}
	return t, nil
}

func parseType(s string) (Type, string, error) {
	switch {
	case strings.HasPrefix(s, "bool"):
		return Bool, s[4:], nil
	case strings.HasPrefix(s, "int"):
		return Int, s[3:], nil
	case strings.HasPrefix(s, "bytes"):
		return Bytes, s[5:], nil
	case strings.HasPrefix(s, "address"):
		return Address, s[7:], nil
	case strings.HasPrefix(s, "list<"):
		elem, rest, err := parseType(s[5:])
		if err != nil {
			return Type{}, "", err
		}
		if !strings.HasPrefix(rest, ">") {
			return Type{}, "", fmt.Errorf("%w: missing '>' in %q", ErrBadType, s)
		}
		return List(elem), rest[1:], nil
	case strings.HasPrefix(s, "tuple("):
		rest := s[6:]
		var fields []Type
		if strings.HasPrefix(rest, ")") {
			return Tuple(), rest[1:], nil
		}
		for {
			f, r, err := parseType(rest)
			if err != nil {
				return Type{}, "", err
			}
			fields = append(fields, f)
			rest = r
			if strings.HasPrefix(rest, ",") {
				rest = rest[1:]
				continue
			}
			if strings.HasPrefix(rest, ")") {
				return Tuple(fields...), rest[1:], nil
			}
			return Type{}, "", fmt.Errorf("%w: missing ')' in %q", ErrBadType, s)
		}
	default:
		return Type{}, "", fmt.Errorf("%w: %q", ErrBadType, s)
	}
}

// Signature builds the canonical signature string for a function name and
// parameter types: name(t1,t2,...).
func Signature(name string, params []Type) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.String()
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

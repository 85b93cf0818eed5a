// Package types defines core value types shared across the Ember VM.
//
// Addresses on Ember are 33 bytes (a compressed public key plus a version
// byte) and digests are 32-byte blake3 outputs. Both render as base58 for
// logs and tooling.
package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// Size constants for core types.
const (
	AddressSize = 33
	DigestSize  = 32
)

var (
	// ErrInvalidAddress is returned when an address has invalid length.
	ErrInvalidAddress = errors.New("invalid address: must be 33 bytes")

	// ErrInvalidDigest is returned when a digest has invalid length.
	ErrInvalidDigest = errors.New("invalid digest: must be 32 bytes")
)

// Address is a 33-byte account or contract address.
type Address [AddressSize]byte

// AddressFromBytes creates an Address from a byte slice.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromBase58 parses a base58-encoded address.
func AddressFromBase58(s string) (Address, error) {
	var a Address
	data, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], data)
	return a, nil
}

// String returns the base58-encoded representation.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromBase58(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Digest is a 32-byte blake3 digest.
type Digest [DigestSize]byte

// DigestOf computes the blake3 digest of data.
func DigestOf(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// DigestFromBytes creates a Digest from a byte slice.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, ErrInvalidDigest
	}
	copy(d[:], b)
	return d, nil
}

// String returns the hex-encoded representation.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

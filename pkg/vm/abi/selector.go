package abi

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// SelectorSize is the length of a function selector in bytes.
const SelectorSize = 8

// selectorDomain separates ABI selectors from every other blake3 use in the
// system. Changing it invalidates all deployed selectors.
const selectorDomain = "ember-abi-v1|"

// Selector is the first 8 bytes of the domain-tagged blake3 hash of a
// function's canonical signature.
type Selector [SelectorSize]byte

// SelectorFor computes the selector for a function name and parameter types.
func SelectorFor(name string, params []Type) Selector {
	return SelectorOf(Signature(name, params))
}

// SelectorOf computes the selector for a canonical signature string.
func SelectorOf(sig string) Selector {
	sum := blake3.Sum256([]byte(selectorDomain + sig))
	var s Selector
	copy(s[:], sum[:SelectorSize])
	return s
}

func (s Selector) String() string {
	return hex.EncodeToString(s[:])
}

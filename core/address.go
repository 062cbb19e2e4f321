package core

// Canonical 20-byte addresses, tagged with the chain type that produced them,
// per spec §3 ("Addresses are 20-byte canonical values tagged with chain
// type"). Mirrors the teacher's address-handling style in core/common_structs.go
// but generalizes to multiple chain types instead of a single SYN address
// space.

import (
	"encoding/hex"
	"fmt"
)

// ChainType tags an Address or Signature with the verification scheme that
// produced it.
type ChainType string

const (
	ChainTypeEthereum ChainType = "ethereum"
	ChainTypeLocal    ChainType = "local"
)

// Address is a 20-byte canonical address tagged with its chain type.
type Address struct {
	Chain ChainType
	Bytes [20]byte
}

// NewAddress builds an Address from raw bytes, which must be 20 bytes long.
func NewAddress(chain ChainType, raw []byte) (Address, error) {
	var a Address
	if len(raw) != 20 {
		return a, NewError(KindInvalidTransaction, fmt.Sprintf("address must be 20 bytes, got %d", len(raw)))
	}
	a.Chain = chain
	copy(a.Bytes[:], raw)
	return a, nil
}

// String renders the address as a 0x-prefixed hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a.Bytes[:])
}

// Equal reports whether two addresses have the same chain type and bytes.
func (a Address) Equal(other Address) bool {
	return a.Chain == other.Chain && a.Bytes == other.Bytes
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a.Bytes == [20]byte{}
}

// Signature is a chain-typed signature byte string, verifiable against a
// message's canonical encoding.
type Signature struct {
	Chain ChainType
	Bytes []byte
}

package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	sollib "github.com/gagliardetto/solana-go"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is a family tagged on-chain address. The zero value is an empty address of no family.
//
// EVM addresses are held in EIP-55 form and compare case-insensitively. Solana addresses are
// base58 public keys and compare exactly.
type Address struct {
	family string
	value  string
}

// ParseAddress validates s for the given chain family and returns it as an Address.
func ParseAddress(family, s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty %s address: %w", family, ErrInvalidAddress)
	}

	switch family {
	case chainsel.FamilyEVM:
		if !common.IsHexAddress(s) {
			return Address{}, fmt.Errorf("%w: %q is not a 20 byte hex address", ErrInvalidAddress, s)
		}

		return Address{family: family, value: common.HexToAddress(s).Hex()}, nil
	case chainsel.FamilySolana:
		pk, err := sollib.PublicKeyFromBase58(s)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
		}

		return Address{family: family, value: pk.String()}, nil
	default:
		return Address{}, fmt.Errorf("family %q: %w", family, ErrUnsupportedFamily)
	}
}

// MustParseAddress is like ParseAddress but panics on error. Intended for tests and constants.
func MustParseAddress(family, s string) Address {
	a, err := ParseAddress(family, s)
	if err != nil {
		panic(err)
	}

	return a
}

// EVMAddress is shorthand for ParseAddress(FamilyEVM, s).
func EVMAddress(s string) (Address, error) {
	return ParseAddress(chainsel.FamilyEVM, s)
}

// SolanaAddress is shorthand for ParseAddress(FamilySolana, s).
func SolanaAddress(s string) (Address, error) {
	return ParseAddress(chainsel.FamilySolana, s)
}

// Family returns the chain family of the address.
func (a Address) Family() string { return a.family }

// String returns the canonical textual form of the address.
func (a Address) String() string { return a.value }

// IsZero reports whether the address is empty or the EVM zero address.
func (a Address) IsZero() bool {
	if a.value == "" {
		return true
	}

	return a.family == chainsel.FamilyEVM && strings.TrimLeft(strings.TrimPrefix(a.value, "0x"), "0") == ""
}

// Equal reports whether a and b denote the same account.
func (a Address) Equal(b Address) bool {
	if a.family != b.family {
		return false
	}
	if a.family == chainsel.FamilyEVM {
		return strings.EqualFold(a.value, b.value)
	}

	return a.value == b.value
}

// MarshalText implements encoding.TextMarshaler so addresses render as plain strings in
// JSON, YAML and TOML reports.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.value), nil
}

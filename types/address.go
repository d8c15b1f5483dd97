package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const AddressLength = 20

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account. Equality is byte equality.
type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// ParseAddress parses a hex address with or without the 0x prefix.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*AddressLength {
		return Address{}, fmt.Errorf("%w: %q has length %d", ErrInvalidAddress, s, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return BytesToAddress(b), nil
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short renders the address as 0x1234...abcd.
func (a Address) Short() string {
	s := a.String()
	return s[:6] + "..." + s[len(s)-4:]
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UnmarshalFlag implements flags.Unmarshaler.
func (a *Address) UnmarshalFlag(value string) error {
	return a.UnmarshalText([]byte(value))
}

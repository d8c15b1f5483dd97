package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var (
	ErrInvalidAmount = errors.New("invalid amount")

	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)
)

// ParseEther converts a decimal ether amount (e.g. "0.01") to wei.
func ParseEther(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, etherDecimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther renders wei as a decimal ether amount without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	q, m := new(big.Int).QuoRem(wei, weiPerEther, new(big.Int))
	if m.Sign() == 0 {
		return q.String()
	}
	frac := m.String()
	frac = strings.Repeat("0", etherDecimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}

// ParseWei parses a base-10 wei amount.
func ParseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals of the native currency.
const EtherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// ParseEther converts a decimal ether amount ("0.5", "12", ".25") to wei.
// Negative values, exponents and more than 18 fractional digits are rejected.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, EtherDecimals)
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", EtherDecimals-len(frac)), "0")
	if digits == "" {
		return new(big.Int), nil
	}
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether string with trailing zeros
// trimmed: 1500000000000000000 -> "1.5".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	v := new(big.Int).Set(wei)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	q, r := new(big.Int).QuoRem(v, weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	rs := r.String()
	frac := strings.Repeat("0", EtherDecimals-len(rs)) + rs
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package money converts between the major-unit decimal amounts the ledger
// stores and the integer minor units payment gateways bill in.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateways bill IDR in whole rupiah, so it carries exponent 0 here even
// though ISO 4217 says 2.
var exponents = map[string]int32{
	"INR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"SGD": 2,
	"AED": 2,
	"IDR": 0,
	"JPY": 0,
}

func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the gateway's integer form.
// The conversion must be exact: an amount carrying sub-minor-unit precision
// is rejected rather than rounded, so no drift can enter the ledger.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	shifted := amount.Shift(Exponent(currency))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-minor-unit precision for %s", amount, strings.ToUpper(currency))
	}
	return shifted.IntPart(), nil
}

func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Exponent(currency))
}

package payment

import (
	"fmt"
	"strings"
)

// zeroDecimal lists currencies that Stripe or PayPal price without a minor
// unit. Amounts are stored in hundredths, so these cannot be charged.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "HUF": true,
	"ISK": true, "JPY": true, "KMF": true, "KRW": true, "MGA": true,
	"PYG": true, "RWF": true, "TWD": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// CheckCurrency rejects codes that are not three letters or that have no
// two-decimal minor unit.
func CheckCurrency(code string) error {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if len(upper) != 3 || strings.Trim(upper, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		return fmt.Errorf("invalid currency code %q", code)
	}
	if zeroDecimal[upper] {
		return fmt.Errorf("currency %s has no minor unit and is not supported", upper)
	}
	return nil
}

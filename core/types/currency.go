package types

import (
	"fmt"
	"strings"
)

// Currency identifies the settlement currency of an offer, bid or escrow.
type Currency uint8

const (
	CurrencyUnknown Currency = iota
	CurrencySTX
	CurrencyUSD
	CurrencyBTC
)

// Valid reports whether the currency is one of the supported settlement
// currencies.
func (c Currency) Valid() bool {
	switch c {
	case CurrencySTX, CurrencyUSD, CurrencyBTC:
		return true
	default:
		return false
	}
}

// NativeCustody reports whether value denominated in the currency moves
// through the native value-transfer capability.
func (c Currency) NativeCustody() bool {
	return c == CurrencySTX
}

func (c Currency) String() string {
	switch c {
	case CurrencySTX:
		return "STX"
	case CurrencyUSD:
		return "USD"
	case CurrencyBTC:
		return "BTC"
	default:
		return "unknown"
	}
}

// ParseCurrency resolves the canonical currency symbol, ignoring case and
// surrounding whitespace.
func ParseCurrency(symbol string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case "STX":
		return CurrencySTX, nil
	case "USD":
		return CurrencyUSD, nil
	case "BTC":
		return CurrencyBTC, nil
	default:
		return CurrencyUnknown, fmt.Errorf("unsupported currency: %q", symbol)
	}
}

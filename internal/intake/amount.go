package intake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount reads an amount in European ("1.234,56") or plain ("1234.56",
// "1,234.56") notation. When both separators appear the last one is the
// decimal separator. A lone comma is decimal; repeated dots or commas are
// thousands groups. Currency codes and spaces are ignored.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, s)

	if clean == "" || clean == "-" {
		return decimal.Zero, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}

	dot, comma := strings.LastIndex(clean, "."), strings.LastIndex(clean, ",")

	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		clean = european(clean)
	case dot >= 0 && comma >= 0:
		clean = strings.ReplaceAll(clean, ",", "")
	case comma >= 0 && strings.Count(clean, ",") == 1:
		clean = strings.Replace(clean, ",", ".", 1)
	case comma >= 0:
		clean = strings.ReplaceAll(clean, ",", "")
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}

	if !d.Equal(d.Round(ledger.MoneyScale)) {
		return decimal.Zero, fmt.Errorf("%q has more than %d decimals: %w", s, ledger.MoneyScale, ErrInvalidAmount)
	}

	return d, nil
}

func european(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", ".")
}

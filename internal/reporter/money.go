package reporter

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatAmount renders amount in currency using the currency's symbol,
// separators and minor units. Unknown currencies fall back to two decimals.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(strings.TrimSpace(currency)))
	if cur == nil {
		return amount.StringFixed(2)
	}

	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

// FormatNullAmount renders a nullable amount, "-" when not set
func FormatNullAmount(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return "-"
	}
	return FormatAmount(amount.Decimal, currency)
}

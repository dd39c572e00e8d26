package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency is one of the closed set of supported display currencies.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyAED Currency = "AED"
	CurrencyINR Currency = "INR"
)

// baseCurrency anchors the rate table; cross pairs are composed through it.
const baseCurrency = CurrencyUSD

// ErrUnsupportedCurrency reports a currency outside the supported set.
var ErrUnsupportedCurrency = fmt.Errorf("unsupported currency")

// ParseCurrency validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case CurrencyUSD:
		return CurrencyUSD, nil
	case CurrencyAED:
		return CurrencyAED, nil
	case CurrencyINR:
		return CurrencyINR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
}

// Rates holds per-pair multipliers touching the base currency (USD).
// Zero fields fall back to the built-in defaults; inverse legs default to
// the reciprocal of the forward leg.
type Rates struct {
	USDToAED decimal.Decimal
	USDToINR decimal.Decimal
	AEDToUSD decimal.Decimal
	INRToUSD decimal.Decimal
}

// Default exchange rates, aligned with the operator-facing documentation.
var (
	defaultUSDToAED = decimal.NewFromFloat(3.67)
	defaultUSDToINR = decimal.NewFromFloat(83.0)
)

// DefaultRates returns the built-in rate table.
func DefaultRates() Rates {
	return Rates{
		USDToAED: defaultUSDToAED,
		USDToINR: defaultUSDToINR,
		AEDToUSD: decimal.NewFromInt(1).Div(defaultUSDToAED),
		INRToUSD: decimal.NewFromInt(1).Div(defaultUSDToINR),
	}
}

func (r Rates) withDefaults() Rates {
	if r.USDToAED.IsZero() {
		r.USDToAED = defaultUSDToAED
	}
	if r.USDToINR.IsZero() {
		r.USDToINR = defaultUSDToINR
	}
	if r.AEDToUSD.IsZero() {
		r.AEDToUSD = decimal.NewFromInt(1).Div(r.USDToAED)
	}
	if r.INRToUSD.IsZero() {
		r.INRToUSD = decimal.NewFromInt(1).Div(r.USDToINR)
	}
	return r
}

// Converter converts amounts between supported currencies. It holds no
// mutable state and is safe for concurrent use.
type Converter struct {
	toBase   map[Currency]decimal.Decimal
	fromBase map[Currency]decimal.Decimal
}

// NewConverter builds a converter from configured rates, deriving any
// missing legs from the defaults.
func NewConverter(rates Rates) *Converter {
	rates = rates.withDefaults()
	one := decimal.NewFromInt(1)
	return &Converter{
		toBase: map[Currency]decimal.Decimal{
			CurrencyUSD: one,
			CurrencyAED: rates.AEDToUSD,
			CurrencyINR: rates.INRToUSD,
		},
		fromBase: map[Currency]decimal.Decimal{
			CurrencyUSD: one,
			CurrencyAED: rates.USDToAED,
			CurrencyINR: rates.USDToINR,
		},
	}
}

// Convert converts amount from one currency to another, rounding to two
// decimal places half-up. Identity conversions return the amount
// untouched, with no rounding drift.
func (c *Converter) Convert(amount decimal.Decimal, from, to Currency) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	toBase, ok := c.toBase[from]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, from)
	}
	fromBase, ok := c.fromBase[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, to)
	}

	converted := amount
	if from != baseCurrency {
		converted = converted.Mul(toBase)
	}
	if to != baseCurrency {
		converted = converted.Mul(fromBase)
	}
	return converted.Round(2), nil
}

var currencyLocales = map[Currency]language.Tag{
	CurrencyUSD: language.MustParse("en-US"),
	CurrencyAED: language.MustParse("en-AE"),
	CurrencyINR: language.MustParse("en-IN"),
}

var currencySymbols = map[Currency]string{
	CurrencyUSD: "$",
	CurrencyAED: "د.إ",
	CurrencyINR: "₹",
}

// Format renders an amount with the currency's symbol and locale grouping.
// Presentation only; calculation paths never consume its output.
func (c *Converter) Format(amount decimal.Decimal, cur Currency) string {
	tag, ok := currencyLocales[cur]
	if !ok {
		return amount.StringFixed(2)
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("%s%v", currencySymbols[cur],
		number.Decimal(amount.InexactFloat64(),
			number.MinFractionDigits(2),
			number.MaxFractionDigits(2)))
}

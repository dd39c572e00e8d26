package pricing

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestConvertIdentityIsExact(t *testing.T) {
	c := NewConverter(Rates{})
	amount := decimal.RequireFromString("123.456789")

	for _, cur := range []Currency{CurrencyUSD, CurrencyAED, CurrencyINR} {
		got, err := c.Convert(amount, cur, cur)
		if err != nil {
			t.Fatalf("identity conversion errored for %s: %v", cur, err)
		}
		if !got.Equal(amount) {
			t.Fatalf("identity conversion changed amount: %s != %s", got, amount)
		}
	}
}

func TestConvertDefaultRates(t *testing.T) {
	c := NewConverter(Rates{})
	hundred := decimal.NewFromInt(100)

	aed, err := c.Convert(hundred, CurrencyUSD, CurrencyAED)
	if err != nil {
		t.Fatalf("USD->AED errored: %v", err)
	}
	if !aed.Equal(decimal.RequireFromString("367")) {
		t.Fatalf("expected 367 AED, got %s", aed)
	}

	inr, err := c.Convert(hundred, CurrencyUSD, CurrencyINR)
	if err != nil {
		t.Fatalf("USD->INR errored: %v", err)
	}
	if !inr.Equal(decimal.RequireFromString("8300")) {
		t.Fatalf("expected 8300 INR, got %s", inr)
	}
}

func TestConvertRoundTripWithinTolerance(t *testing.T) {
	c := NewConverter(Rates{})
	pairs := [][2]Currency{
		{CurrencyUSD, CurrencyAED},
		{CurrencyUSD, CurrencyINR},
		{CurrencyAED, CurrencyINR},
	}
	tolerance := decimal.RequireFromString("0.02")

	for _, pair := range pairs {
		amount := decimal.RequireFromString("250.75")
		there, err := c.Convert(amount, pair[0], pair[1])
		if err != nil {
			t.Fatalf("%s->%s errored: %v", pair[0], pair[1], err)
		}
		back, err := c.Convert(there, pair[1], pair[0])
		if err != nil {
			t.Fatalf("%s->%s errored: %v", pair[1], pair[0], err)
		}
		if back.Sub(amount).Abs().GreaterThan(tolerance) {
			t.Fatalf("%s->%s->%s drifted: %s vs %s", pair[0], pair[1], pair[0], back, amount)
		}
	}
}

func TestConvertConfiguredRatesOverrideDefaults(t *testing.T) {
	c := NewConverter(Rates{USDToAED: decimal.NewFromInt(4)})

	aed, err := c.Convert(decimal.NewFromInt(10), CurrencyUSD, CurrencyAED)
	if err != nil {
		t.Fatalf("USD->AED errored: %v", err)
	}
	if !aed.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected configured rate to apply, got %s", aed)
	}

	// The inverse leg derives from the configured forward leg.
	usd, err := c.Convert(decimal.NewFromInt(40), CurrencyAED, CurrencyUSD)
	if err != nil {
		t.Fatalf("AED->USD errored: %v", err)
	}
	if !usd.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected derived inverse rate, got %s", usd)
	}
}

func TestConvertUnsupportedCurrency(t *testing.T) {
	c := NewConverter(Rates{})
	if _, err := c.Convert(decimal.NewFromInt(1), Currency("GBP"), CurrencyUSD); err == nil {
		t.Fatal("expected error for unsupported source currency")
	}
	if _, err := c.Convert(decimal.NewFromInt(1), CurrencyUSD, Currency("GBP")); err == nil {
		t.Fatal("expected error for unsupported target currency")
	}
}

func TestFormatCarriesSymbol(t *testing.T) {
	c := NewConverter(Rates{})
	cases := map[Currency]string{
		CurrencyUSD: "$",
		CurrencyAED: "د.إ",
		CurrencyINR: "₹",
	}
	for cur, symbol := range cases {
		got := c.Format(decimal.RequireFromString("1234.5"), cur)
		if !strings.HasPrefix(got, symbol) {
			t.Fatalf("formatted %s value %q missing symbol %q", cur, got, symbol)
		}
		if !strings.Contains(got, "234.50") {
			t.Fatalf("formatted %s value %q missing fraction digits", cur, got)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	if cur, err := ParseCurrency(" usd "); err != nil || cur != CurrencyUSD {
		t.Fatalf("expected USD, got %q err %v", cur, err)
	}
	if _, err := ParseCurrency("BTC"); err == nil {
		t.Fatal("expected error for unsupported code")
	}
}

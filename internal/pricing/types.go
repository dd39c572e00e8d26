package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the source of a catalog-backed price.
type Provider string

const (
	ProviderManual       Provider = "MANUAL"
	ProviderMarket       Provider = "MARKET"
	ProviderAppleTradeIn Provider = "APPLE_TRADEIN"
)

// ProviderOrder is the fixed priority in which providers are consulted.
var ProviderOrder = []Provider{ProviderManual, ProviderMarket, ProviderAppleTradeIn}

// ParseProvider validates a provider tag.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToUpper(strings.TrimSpace(s))) {
	case ProviderManual:
		return ProviderManual, nil
	case ProviderMarket:
		return ProviderMarket, nil
	case ProviderAppleTradeIn:
		return ProviderAppleTradeIn, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Condition grades the physical state of a device.
type Condition string

const (
	ConditionNew       Condition = "NEW"
	ConditionExcellent Condition = "EXCELLENT"
	ConditionGood      Condition = "GOOD"
	ConditionFair      Condition = "FAIR"
	ConditionPoor      Condition = "POOR"
)

// ParseCondition validates a condition grade.
func ParseCondition(s string) (Condition, error) {
	switch Condition(strings.ToUpper(strings.TrimSpace(s))) {
	case ConditionNew:
		return ConditionNew, nil
	case ConditionExcellent:
		return ConditionExcellent, nil
	case ConditionGood:
		return ConditionGood, nil
	case ConditionFair:
		return ConditionFair, nil
	case ConditionPoor:
		return ConditionPoor, nil
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// Normalize maps the input-only NEW grade to EXCELLENT and fills an empty
// grade with EXCELLENT. Devices in this inventory are never resold as new,
// so NEW never participates in matching or estimation.
func (c Condition) Normalize() Condition {
	switch c {
	case "", ConditionNew:
		return ConditionExcellent
	}
	return c
}

// MatchLevel records how specifically a catalog entry matched a device.
type MatchLevel string

const (
	MatchExact          MatchLevel = "EXACT"
	MatchNoStorage      MatchLevel = "NO_STORAGE"
	MatchFamilyFallback MatchLevel = "FAMILY_FALLBACK"
	MatchNone           MatchLevel = "NONE"
)

// DeviceAttributes is the normalized device record a valuation runs on.
// Nil pointers mean the inventory source did not report the attribute.
type DeviceAttributes struct {
	Serial        string
	ProductFamily *string
	DeviceModel   *string
	ProductType   *string
	Storage       *string
	Condition     Condition
	Region        string
}

// CatalogEntry is an operator-authored price row. A nil DeviceModel or
// Storage is a wildcard: the row applies to any model or any storage in
// scope. Rows are immutable once read within a valuation.
type CatalogEntry struct {
	ID            int64
	Provider      Provider
	ProductFamily string
	DeviceModel   *string
	ProductType   *string
	Storage       *string
	Condition     Condition
	Region        string
	Price         decimal.Decimal
	Currency      Currency
	EffectiveDate time.Time
	ExpiresAt     *time.Time
}

// MatchCandidate pairs a matched catalog entry with how it matched.
type MatchCandidate struct {
	Entry       CatalogEntry
	Level       MatchLevel
	Explanation string
}

// Result is the outcome of one valuation. Exactly one current Result per
// device serial is meaningful downstream; the store upserts by serial.
type Result struct {
	DeviceSerial    string
	Price           decimal.Decimal
	Currency        Currency
	DisplayPrice    *decimal.Decimal
	DisplayCurrency *Currency
	Provider        Provider
	MatchLevel      MatchLevel
	Condition       Condition
	Explanation     string
	ComputedAt      time.Time
}

func strPtr(s string) *string { return &s }

package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Confidence grades how much device data backed an estimate. It is
// informational only and never gates whether a price is returned.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Estimate is a catalog-independent price computed from the static
// reference tables.
type Estimate struct {
	Price       decimal.Decimal
	Currency    Currency
	Confidence  Confidence
	Explanation string
}

// Reference tables. Static by design: estimates are a fallback for
// devices the catalog does not cover, not a market feed.
var (
	// baseValues hold the like-new resale baseline per product family.
	baseValues = map[string]decimal.Decimal{
		"iPhone":      decimal.NewFromInt(650),
		"iPad":        decimal.NewFromInt(480),
		"Mac":         decimal.NewFromInt(960),
		"Apple Watch": decimal.NewFromInt(320),
	}
	fallbackFamily = "Mac"

	conditionFactors = map[Condition]decimal.Decimal{
		ConditionExcellent: decimal.NewFromInt(1),
		ConditionGood:      decimal.NewFromFloat(0.77),
		ConditionFair:      decimal.NewFromFloat(0.54),
		ConditionPoor:      decimal.NewFromFloat(0.31),
	}

	storageFactors = map[string]decimal.Decimal{
		"64GB":  decimal.NewFromFloat(0.85),
		"128GB": decimal.NewFromInt(1),
		"256GB": decimal.NewFromFloat(1.15),
		"512GB": decimal.NewFromFloat(1.35),
		"1TB":   decimal.NewFromFloat(1.6),
		"2TB":   decimal.NewFromFloat(2),
	}

	regionFactors = map[string]decimal.Decimal{
		"US":    decimal.NewFromInt(1),
		"USA":   decimal.NewFromInt(1),
		"UAE":   decimal.NewFromFloat(0.95),
		"AE":    decimal.NewFromFloat(0.95),
		"IN":    decimal.NewFromFloat(0.85),
		"IND":   decimal.NewFromFloat(0.85),
		"INDIA": decimal.NewFromFloat(0.85),
	}
)

// generationRule maps a free-text model string onto a recency factor.
// Rules are an ordered list, not a map: more specific patterns must be
// evaluated before shorter ones ("15" before the family default, the
// bare "x" token before "8").
type generationRule struct {
	matches func(model string) bool
	factor  decimal.Decimal
}

func contains(substr string) func(string) bool {
	return func(model string) bool { return strings.Contains(model, substr) }
}

func containsAny(substrs ...string) func(string) bool {
	return func(model string) bool {
		for _, s := range substrs {
			if strings.Contains(model, s) {
				return true
			}
		}
		return false
	}
}

// familyLadder is the generation ladder for one product family. Ladders
// are gated strictly by family: "m3" on an iPad means the M3 iPad
// generation, "m3" on a Mac means the M3 chip, and neither ladder is ever
// consulted for the other family.
type familyLadder struct {
	rules          []generationRule
	unmatchedModel decimal.Decimal
}

var generationLadders = map[string]familyLadder{
	"iPhone": {
		rules: []generationRule{
			{contains("15"), decimal.NewFromInt(1)},
			{contains("14"), decimal.NewFromFloat(0.85)},
			{contains("13"), decimal.NewFromFloat(0.7)},
			{contains("12"), decimal.NewFromFloat(0.55)},
			{contains("11"), decimal.NewFromFloat(0.4)},
			{func(model string) bool {
				// Bare X token only; XS and the Max suffix belong to
				// their numbered generations.
				return strings.Contains(model, "x") && !strings.Contains(model, "xs") && !strings.Contains(model, "max")
			}, decimal.NewFromFloat(0.3)},
			{contains("8"), decimal.NewFromFloat(0.25)},
			{contains("7"), decimal.NewFromFloat(0.2)},
			{contains("6"), decimal.NewFromFloat(0.15)},
		},
		unmatchedModel: decimal.NewFromFloat(0.35),
	},
	"iPad": {
		rules: []generationRule{
			{containsAny("m5", "m4"), decimal.NewFromInt(1)},
			{contains("m3"), decimal.NewFromFloat(0.85)},
			{contains("m2"), decimal.NewFromFloat(0.7)},
			{contains("m1"), decimal.NewFromFloat(0.55)},
		},
		unmatchedModel: decimal.NewFromFloat(0.6),
	},
	"Mac": {
		rules: []generationRule{
			{contains("m3"), decimal.NewFromInt(1)},
			{contains("m2"), decimal.NewFromFloat(0.85)},
			{contains("m1"), decimal.NewFromFloat(0.7)},
			{containsAny("intel", "2020", "2019", "2018"), decimal.NewFromFloat(0.5)},
		},
		unmatchedModel: decimal.NewFromFloat(0.65),
	},
	"Apple Watch": {
		unmatchedModel: decimal.NewFromFloat(0.6),
	},
}

var (
	missingModelFactor  = decimal.NewFromFloat(0.75)
	unknownFamilyFactor = decimal.NewFromFloat(0.6)
)

// Estimator computes formula-based prices when no catalog entry exists.
// Pure; safe for unlimited concurrent callers.
type Estimator struct{}

// NewEstimator builds an estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate prices a device from the reference tables. It always succeeds:
// every missing attribute has a documented default, so the engine can
// rely on a usable price for any device, however sparse its record.
func (e *Estimator) Estimate(device DeviceAttributes, target Currency) Estimate {
	condition := device.Condition.Normalize()

	family := fallbackFamily
	if device.ProductFamily != nil && *device.ProductFamily != "" {
		family = *device.ProductFamily
	}

	base, ok := baseValues[family]
	if !ok {
		base = baseValues[fallbackFamily]
	}

	conditionFactor, ok := conditionFactors[condition]
	if !ok {
		conditionFactor = conditionFactors[ConditionGood]
	}

	storageFactor := decimal.NewFromInt(1)
	if device.Storage != nil {
		if f, ok := storageFactors[*device.Storage]; ok {
			storageFactor = f
		}
	}

	regionFactor := decimal.NewFromInt(1)
	if f, ok := regionFactors[strings.ToUpper(device.Region)]; ok {
		regionFactor = f
	}

	generationFactor := e.generationFactor(device.ProductFamily, device.DeviceModel)

	price := base.
		Mul(conditionFactor).
		Mul(storageFactor).
		Mul(generationFactor).
		Mul(regionFactor).
		Round(0)

	confidence := ConfidenceLow
	var explanation string
	switch {
	case device.DeviceModel != nil && device.Storage != nil:
		confidence = ConfidenceMedium
		explanation = fmt.Sprintf("Estimated: %s %s (%s) - based on %s family pricing", *device.DeviceModel, *device.Storage, strings.ToLower(string(condition)), family)
	case device.ProductFamily != nil:
		explanation = fmt.Sprintf("Estimated: %s (%s) - family fallback pricing", family, strings.ToLower(string(condition)))
	default:
		explanation = fmt.Sprintf("Estimated: Generic device (%s) - low confidence estimate", strings.ToLower(string(condition)))
	}

	return Estimate{
		Price:       price,
		Currency:    target,
		Confidence:  confidence,
		Explanation: explanation + " [ESTIMATE - Add pricing data for accurate value]",
	}
}

// generationFactor consults the family's ladder against the lowercased
// model string. The family gates which ladder is used, never both.
func (e *Estimator) generationFactor(family, model *string) decimal.Decimal {
	if model == nil || *model == "" {
		return missingModelFactor
	}
	if family == nil {
		return unknownFamilyFactor
	}

	ladder, ok := generationLadders[*family]
	if !ok {
		return unknownFamilyFactor
	}

	lowered := strings.ToLower(*model)
	for _, rule := range ladder.rules {
		if rule.matches(lowered) {
			return rule.factor
		}
	}
	return ladder.unmatchedModel
}

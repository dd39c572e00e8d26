package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FieldMatch is a tri-state constraint on a nullable catalog column.
// The zero value leaves the column unconstrained. Equals requires the
// column to hold that value; NullOnly requires the column itself to be
// NULL (an explicit wildcard row).
type FieldMatch struct {
	Equals   *string
	NullOnly bool
}

// MatchEquals constrains a column to an exact value.
func MatchEquals(v string) FieldMatch { return FieldMatch{Equals: &v} }

// MatchNull requires the column to be NULL.
func MatchNull() FieldMatch { return FieldMatch{NullOnly: true} }

// CatalogFilter narrows catalog rows for a single matching tier.
type CatalogFilter struct {
	ProductFamily FieldMatch
	DeviceModel   FieldMatch
	ProductType   FieldMatch
	Storage       FieldMatch
	Condition     Condition
	Region        string
	ActiveAt      time.Time
}

// CatalogQuerier is the catalog-store collaborator. Implementations must
// return only rows active at filter.ActiveAt (effectiveDate <= ActiveAt,
// expiresAt absent or > ActiveAt), ordered newest effectiveDate first.
type CatalogQuerier interface {
	FindEntries(ctx context.Context, provider Provider, filter CatalogFilter) ([]CatalogEntry, error)
}

// Matcher resolves the best catalog entry for a device through a ladder
// of progressively relaxed lookups: EXACT, then NO_STORAGE, then
// FAMILY_FALLBACK. Each tier issues exactly one catalog query; the
// family tier is skipped when the device reports no product family.
type Matcher struct {
	catalog CatalogQuerier
	now     func() time.Time
}

// NewMatcher builds a matcher over a catalog querier.
func NewMatcher(catalog CatalogQuerier) *Matcher {
	return &Matcher{catalog: catalog, now: time.Now}
}

// Match resolves a candidate for the device under one provider's catalog.
// The device condition must already be normalized (NEW never reaches the
// catalog). A nil candidate with a nil error means no tier matched.
func (m *Matcher) Match(ctx context.Context, device DeviceAttributes, provider Provider) (*MatchCandidate, error) {
	condition := device.Condition.Normalize()
	region := device.Region
	if region == "" {
		region = "US"
	}
	activeAt := m.now().UTC()

	base := CatalogFilter{
		Condition: condition,
		Region:    region,
		ActiveAt:  activeAt,
	}

	// EXACT: constrain on every attribute the device actually reports.
	// Absent attributes pass through as "don't care" rather than forcing
	// a null match.
	exact := base
	if device.ProductFamily != nil {
		exact.ProductFamily = MatchEquals(*device.ProductFamily)
	}
	if device.DeviceModel != nil {
		exact.DeviceModel = MatchEquals(*device.DeviceModel)
	}
	if device.Storage != nil {
		exact.Storage = MatchEquals(*device.Storage)
	}
	if entry, err := m.lookup(ctx, provider, exact); err != nil {
		return nil, err
	} else if entry != nil {
		return &MatchCandidate{
			Entry:       *entry,
			Level:       MatchExact,
			Explanation: exactExplanation(*entry),
		}, nil
	}

	// NO_STORAGE: same, but require an explicit any-storage wildcard row
	// and ignore the device's storage value entirely.
	noStorage := base
	noStorage.ProductFamily = exact.ProductFamily
	noStorage.DeviceModel = exact.DeviceModel
	noStorage.Storage = MatchNull()
	if entry, err := m.lookup(ctx, provider, noStorage); err != nil {
		return nil, err
	} else if entry != nil {
		return &MatchCandidate{
			Entry:       *entry,
			Level:       MatchNoStorage,
			Explanation: fmt.Sprintf("Matched %s (any storage) – %s – %s", entryName(*entry), strings.ToLower(string(entry.Condition)), entry.Region),
		}, nil
	}

	// FAMILY_FALLBACK: family-wide wildcard row only. Requires a family
	// on the device.
	if device.ProductFamily != nil {
		family := base
		family.ProductFamily = MatchEquals(*device.ProductFamily)
		family.DeviceModel = MatchNull()
		family.ProductType = MatchNull()
		family.Storage = MatchNull()
		if entry, err := m.lookup(ctx, provider, family); err != nil {
			return nil, err
		} else if entry != nil {
			return &MatchCandidate{
				Entry:       *entry,
				Level:       MatchFamilyFallback,
				Explanation: fmt.Sprintf("Matched %s (family fallback) – %s – %s", entry.ProductFamily, strings.ToLower(string(entry.Condition)), entry.Region),
			}, nil
		}
	}

	return nil, nil
}

// lookup runs one tier query and applies the in-tier tie break: the
// querier orders by effectiveDate descending, so the head row wins.
func (m *Matcher) lookup(ctx context.Context, provider Provider, filter CatalogFilter) (*CatalogEntry, error) {
	entries, err := m.catalog.FindEntries(ctx, provider, filter)
	if err != nil {
		return nil, fmt.Errorf("query catalog for provider %s: %w", provider, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	entry := entries[0]
	return &entry, nil
}

func entryName(entry CatalogEntry) string {
	if entry.DeviceModel != nil {
		return *entry.DeviceModel
	}
	return entry.ProductFamily
}

func exactExplanation(entry CatalogEntry) string {
	storage := ""
	if entry.Storage != nil {
		storage = " " + *entry.Storage
	}
	return fmt.Sprintf("Matched %s%s – %s – %s", entryName(entry), storage, strings.ToLower(string(entry.Condition)), entry.Region)
}

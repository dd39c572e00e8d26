package pricing

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestChainShortCircuitsOnFirstCandidate(t *testing.T) {
	catalog := newFakeCatalog(
		catalogEntry(ProviderManual, "Mac", strPtr("MacBook Air"), strPtr("256GB"), ConditionGood, 900),
		catalogEntry(ProviderMarket, "Mac", strPtr("MacBook Air"), strPtr("256GB"), ConditionGood, 950),
	)
	chain := NewChain(NewMatcher(catalog), zerolog.Nop())

	candidate := chain.Resolve(context.Background(), testDevice())
	if candidate == nil || candidate.Entry.Provider != ProviderManual {
		t.Fatalf("expected the MANUAL candidate, got %+v", candidate)
	}
	if catalog.byCall[ProviderMarket] != 0 || catalog.byCall[ProviderAppleTradeIn] != 0 {
		t.Fatalf("later providers must not be consulted: %+v", catalog.byCall)
	}
}

func TestChainWalksPriorityOrder(t *testing.T) {
	catalog := newFakeCatalog(
		catalogEntry(ProviderMarket, "Mac", strPtr("MacBook Air"), strPtr("256GB"), ConditionGood, 950),
	)
	chain := NewChain(NewMatcher(catalog), zerolog.Nop())

	candidate := chain.Resolve(context.Background(), testDevice())
	if candidate == nil || candidate.Entry.Provider != ProviderMarket {
		t.Fatalf("expected the MARKET candidate, got %+v", candidate)
	}
	if catalog.byCall[ProviderManual] != 3 {
		t.Fatalf("MANUAL should have been exhausted first, got %d lookups", catalog.byCall[ProviderManual])
	}
}

// erroringCatalog fails queries for one provider and delegates the rest.
type erroringCatalog struct {
	inner    *fakeCatalog
	failFor  Provider
	failures int
}

func (e *erroringCatalog) FindEntries(ctx context.Context, provider Provider, filter CatalogFilter) ([]CatalogEntry, error) {
	if provider == e.failFor {
		e.failures++
		return nil, context.DeadlineExceeded
	}
	return e.inner.FindEntries(ctx, provider, filter)
}

func TestChainTreatsProviderErrorAsNoMatch(t *testing.T) {
	catalog := &erroringCatalog{
		inner: newFakeCatalog(
			catalogEntry(ProviderMarket, "Mac", strPtr("MacBook Air"), strPtr("256GB"), ConditionGood, 950),
		),
		failFor: ProviderManual,
	}
	chain := NewChain(NewMatcher(catalog), zerolog.Nop())

	candidate := chain.Resolve(context.Background(), testDevice())
	if candidate == nil || candidate.Entry.Provider != ProviderMarket {
		t.Fatalf("chain must continue past a failing provider, got %+v", candidate)
	}
	if catalog.failures == 0 {
		t.Fatal("expected the failing provider to have been tried")
	}
}

func TestChainAnnotatesTradeInCandidates(t *testing.T) {
	catalog := newFakeCatalog(
		catalogEntry(ProviderAppleTradeIn, "Mac", strPtr("MacBook Air"), strPtr("256GB"), ConditionGood, 500),
	)
	chain := NewChain(NewMatcher(catalog), zerolog.Nop())

	candidate := chain.Resolve(context.Background(), testDevice())
	if candidate == nil {
		t.Fatal("expected a trade-in candidate")
	}
	if !strings.HasPrefix(candidate.Explanation, "Apple Trade-In Estimate") {
		t.Fatalf("trade-in candidates must disclose their source: %q", candidate.Explanation)
	}
}

func TestChainReturnsNilWhenNothingMatches(t *testing.T) {
	catalog := newFakeCatalog()
	chain := NewChain(NewMatcher(catalog), zerolog.Nop())

	if candidate := chain.Resolve(context.Background(), testDevice()); candidate != nil {
		t.Fatalf("expected no candidate, got %+v", candidate)
	}
	for _, provider := range ProviderOrder {
		if catalog.byCall[provider] != 3 {
			t.Fatalf("provider %s should have run its 3 tiers, got %d", provider, catalog.byCall[provider])
		}
	}
}

package pricing

import (
	"context"

	"github.com/rs/zerolog"
)

// Chain tries providers in fixed priority order and returns the first
// candidate found. A provider whose catalog query errors is treated as
// having no candidate; the chain moves on rather than failing the whole
// resolution.
type Chain struct {
	matcher *Matcher
	order   []Provider
	logger  zerolog.Logger
}

// NewChain builds the provider chain over a matcher. The priority order
// is MANUAL, then MARKET, then APPLE_TRADEIN.
func NewChain(matcher *Matcher, logger zerolog.Logger) *Chain {
	return &Chain{
		matcher: matcher,
		order:   ProviderOrder,
		logger:  logger.With().Str("component", "provider_chain").Logger(),
	}
}

// Resolve walks the provider priority order and returns the first
// candidate, or nil when no provider's catalog covers the device.
func (c *Chain) Resolve(ctx context.Context, device DeviceAttributes) *MatchCandidate {
	for _, provider := range c.order {
		candidate, err := c.matcher.Match(ctx, device, provider)
		if err != nil {
			c.logger.Error().Err(err).
				Str("provider", string(provider)).
				Str("serial", device.Serial).
				Msg("catalog query failed; treating provider as no match")
			continue
		}
		if candidate == nil {
			continue
		}
		if provider == ProviderAppleTradeIn {
			// Rows under this tag are operator-entered estimates; there
			// is no live trade-in integration, so the figure must be
			// disclosed as non-authoritative.
			candidate.Explanation = "Apple Trade-In Estimate (manual or authorized source required): " + candidate.Explanation
		}
		return candidate
	}
	return nil
}

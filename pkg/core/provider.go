package core

import (
	"context"
	"time"
)

// SearchProvider returns candidate items for a query.
//
// Implementations must honor ctx cancellation; callers treat any error,
// including context errors, as "no results". Items are returned in provider
// order, which the ranker uses as the final tie-break.
//
// Registration pattern:
//
//	func init() {
//		core.RegisterProvider("myindex", func(cfg core.ProviderConfig) (core.SearchProvider, error) {
//			return New(cfg.Endpoint)
//		})
//	}
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]CandidateItem, error)
}

// SearchProviderFunc adapts a function to SearchProvider.
type SearchProviderFunc func(ctx context.Context, query string) ([]CandidateItem, error)

func (f SearchProviderFunc) Search(ctx context.Context, query string) ([]CandidateItem, error) {
	return f(ctx, query)
}

// ProviderConfig carries the settings shared by provider factories.
type ProviderConfig struct {
	Endpoint string
	Timeout  time.Duration
	// Strict turns malformed items into request errors instead of skipping them.
	Strict bool
}

// ProviderFactory builds a provider from its configuration.
type ProviderFactory func(cfg ProviderConfig) (SearchProvider, error)

package fetch

import (
	"context"

	"coursewatch/internal/catalog"
)

// Source identifies what a strategy should retrieve.
type Source struct {
	// ListingURL is the rendered catalog page.
	ListingURL string
	// APIURL is the JSON catalog endpoint, if one is configured.
	APIURL string
	// Category optionally narrows the listing.
	Category string
}

// Strategy retrieves the current catalog listing. Implementations classify
// failures with ErrTransient, ErrBlocked, or ErrParse so the selector can
// decide between retry and fallback.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, source Source) ([]catalog.Item, error)
}

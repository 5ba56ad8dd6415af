package storage

import (
	"context"

	"car-dashboard/models"
)

// ListingSource yields the raw listings table. Implementations read fresh
// data on every call.
type ListingSource interface {
	Load(ctx context.Context) ([]*models.RawListing, error)
}

// ListingWriter is the interface any sink for cleaned listings must satisfy.
type ListingWriter interface {
	Write(ctx context.Context, res *models.CleanResult) error
	Close() error
}

// ListingStore is a sink that can read back what it stored.
type ListingStore interface {
	FetchAll(ctx context.Context) ([]*models.Listing, error)
}

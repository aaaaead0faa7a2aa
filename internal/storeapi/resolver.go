package storeapi

import (
	"context"

	"github.com/uwave/booth/internal/domain/media"
)

// SourceResolver resolves external media references to canonical Media
// descriptors, persisting newly-seen descriptors durably before
// returning them so later lookups hit the durable store instead of the
// source API.
type SourceResolver interface {
	// GetOne resolves a single (sourceType, id) reference.
	GetOne(ctx context.Context, sourceType, id string) (*media.Media, error)
	// Get resolves a batch of ids sharing one sourceType in a single
	// call where the underlying source API allows it.
	Get(ctx context.Context, sourceType string, ids []string) ([]*media.Media, error)
}

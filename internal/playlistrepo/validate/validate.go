// Package validate provides a filter chain for validating playlist
// item additions before they reach the repository layer.
package validate

import (
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/uwave/booth/internal/storeapi"
)

// ItemInput is a single caller-supplied item destined for
// addPlaylistItems, prior to source type grouping.
type ItemInput struct {
	SourceType string
	SourceID   any
}

// Result reports a validated item with its source ID normalized to a
// string, or a rejection.
type Result struct {
	Accepted bool
	Code     string
	SourceID string
}

func accept(sourceID string) Result { return Result{Accepted: true, SourceID: sourceID} }
func reject(code string) Result     { return Result{Code: code} }

// Filter checks one property of an ItemInput.
type Filter interface {
	Name() string
	Check(item ItemInput) Result
}

// Chain runs filters in sequence, stopping at the first rejection.
type Chain struct {
	filters []Filter
}

// NewChain builds the default validation chain for addPlaylistItems:
// sourceType must be a non-empty string, sourceID must be a string or
// number.
func NewChain() *Chain {
	return &Chain{filters: []Filter{sourceTypeFilter{}, sourceIDFilter{}}}
}

// Check runs every filter and returns the first rejection or a final
// acceptance carrying the normalized source ID.
func (c *Chain) Check(item ItemInput) Result {
	for _, f := range c.filters {
		if result := f.Check(item); !result.Accepted {
			return result
		}
	}
	return accept(normalizeSourceID(item.SourceID))
}

// CheckAll validates a batch, stopping at the first rejection. On full
// acceptance it returns one Result per item, in order, so callers
// don't have to re-run Check to recover normalized source IDs.
func (c *Chain) CheckAll(items []ItemInput) ([]Result, error) {
	results := make([]Result, len(items))
	for i, item := range items {
		result := c.Check(item)
		if !result.Accepted {
			return nil, errors.Mark(errors.Newf("playlist item %d: %s", i, result.Code), storeapi.ErrBadRequest)
		}
		results[i] = result
	}
	return results, nil
}

type sourceTypeFilter struct{}

func (sourceTypeFilter) Name() string { return "source_type" }
func (sourceTypeFilter) Check(item ItemInput) Result {
	if item.SourceType == "" {
		return reject("source_type_required")
	}
	return accept("")
}

type sourceIDFilter struct{}

func (sourceIDFilter) Name() string { return "source_id" }
func (sourceIDFilter) Check(item ItemInput) Result {
	switch item.SourceID.(type) {
	case string:
		if item.SourceID.(string) == "" {
			return reject("source_id_required")
		}
	case int, int32, int64, float32, float64:
		// numeric source ids are accepted and normalized to string
	default:
		return reject("source_id_invalid_type")
	}
	return accept(normalizeSourceID(item.SourceID))
}

func normalizeSourceID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int:
		return strconv.FormatInt(int64(id), 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case float32:
		return strconv.FormatInt(int64(id), 10)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}

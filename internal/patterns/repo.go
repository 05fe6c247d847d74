package patterns

import (
	"context"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, batchID string, patterns []models.FlowPattern) error

// StoreFlowPatterns implements Store.
func (f StoreFunc) StoreFlowPatterns(ctx context.Context, batchID string, patterns []models.FlowPattern) error {
	return f(ctx, batchID, patterns)
}

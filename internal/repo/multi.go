package repo

import (
	"context"
	"errors"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
)

// Multi fans patterns out to every store and joins their errors.
type Multi []patterns.Store

// StoreFlowPatterns implements patterns.Store.
func (m Multi) StoreFlowPatterns(ctx context.Context, batchID string, flows []models.FlowPattern) error {
	var errs []error
	for _, store := range m {
		if store == nil {
			continue
		}
		if err := store.StoreFlowPatterns(ctx, batchID, flows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

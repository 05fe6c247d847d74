package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// FileStore writes the mined patterns of a batch as one JSON report.
type FileStore struct {
	Path string
	now  func() time.Time
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, now: time.Now}
}

// FlowReport is the on-disk report shape.
type FlowReport struct {
	BatchID     string               `json:"batch_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Patterns    []models.FlowPattern `json:"patterns"`
}

// StoreFlowPatterns replaces the report at Path.
func (f *FileStore) StoreFlowPatterns(_ context.Context, batchID string, patterns []models.FlowPattern) error {
	if patterns == nil {
		patterns = []models.FlowPattern{}
	}
	data, err := json.MarshalIndent(FlowReport{BatchID: batchID, GeneratedAt: f.now().UTC(), Patterns: patterns}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode flow report: %w", err)
	}
	if err := os.WriteFile(f.Path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write flow report: %w", err)
	}
	return nil
}

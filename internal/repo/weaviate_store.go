// Package repo persists mined flow patterns outside the process.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/shoptrace-synth/internal/config"
	"github.com/miradorstack/shoptrace-synth/internal/models"
)

var flowPatternNamespace = uuid.MustParse("0b8e4c7a-2f61-4d9e-8c35-7a1d5e9f3b20")

// WeaviateStore writes flow patterns as objects of one Weaviate class.
type WeaviateStore struct {
	endpoint   string
	apiKey     string
	class      string
	httpClient *http.Client
}

// NewWeaviateStore constructs a Weaviate client. An empty endpoint makes every
// store a no-op.
func NewWeaviateStore(cfg config.FlowStoreConfig) *WeaviateStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	class := cfg.Class
	if class == "" {
		class = "FlowPattern"
	}
	return &WeaviateStore{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		class:      class,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StoreFlowPatterns upserts one object per pattern. Object ids derive from the
// batch and flow type so a retried batch overwrites instead of duplicating.
func (r *WeaviateStore) StoreFlowPatterns(ctx context.Context, batchID string, patterns []models.FlowPattern) error {
	if r == nil {
		return fmt.Errorf("weaviate store not initialised")
	}
	if r.endpoint == "" {
		return nil
	}

	for _, pattern := range patterns {
		id := ObjectID(batchID, pattern.FlowType)
		body, err := json.Marshal(map[string]any{
			"class":      r.class,
			"id":         id,
			"properties": flowPatternProperties(batchID, pattern),
		})
		if err != nil {
			return fmt.Errorf("encode flow pattern %s: %w", pattern.FlowType, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.endpoint+"/v1/objects/"+r.class+"/"+id, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("store flow pattern %s: %w", pattern.FlowType, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("store flow pattern %s failed: %s: %s", pattern.FlowType, resp.Status, strings.TrimSpace(string(data)))
		}
		resp.Body.Close()
	}
	return nil
}

// ObjectID is the deterministic object id of a pattern within a batch.
func ObjectID(batchID, flowType string) string {
	return uuid.NewSHA1(flowPatternNamespace, []byte(batchID+"/"+flowType)).String()
}

func flowPatternProperties(batchID string, pattern models.FlowPattern) map[string]any {
	fields := pattern.TopFields
	if fields == nil {
		fields = []string{}
	}
	return map[string]any{
		"batchId":       batchID,
		"flowType":      pattern.FlowType,
		"sessions":      pattern.Sessions,
		"sequences":     pattern.Sequences,
		"prevalence":    pattern.Prevalence,
		"completeRatio": pattern.CompleteRatio,
		"meanLength":    pattern.MeanLength,
		"topFields":     fields,
		"lastSeen":      pattern.LastSeen.UTC().Format(time.RFC3339),
	}
}

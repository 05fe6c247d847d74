// Package cache memoizes synthesized session output in Redis or Valkey so re-runs
// over an unchanged corpus skip the pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// Entry is the cached outcome of one fully processed session.
type Entry struct {
	Examples   []models.TrainingExample  `json:"examples"`
	Considered int                       `json:"considered"`
	Filtered   int                       `json:"filtered"`
	Sequences  []models.ShoppingSequence `json:"sequences"`
}

// Results stores synthesized sessions keyed by configuration fingerprint and
// session digest.
type Results struct {
	provider Provider
	prefix   string
	ttl      time.Duration
}

// NewResults wraps provider; a nil provider disables caching.
func NewResults(provider Provider, prefix string, ttl time.Duration) *Results {
	if provider == nil {
		provider = NoopProvider{}
	}
	return &Results{provider: provider, prefix: prefix, ttl: ttl}
}

// Key joins the prefix, fingerprint and digest.
func (r *Results) Key(fingerprint, digest string) string {
	return r.prefix + fingerprint + ":" + digest
}

// Load returns ErrCacheMiss when nothing usable is stored under key.
func (r *Results) Load(ctx context.Context, key string) (Entry, error) {
	payload, err := r.provider.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		// treat corrupt entries as absent so the session is recomputed
		_ = r.provider.Del(ctx, key)
		return Entry{}, ErrCacheMiss
	}
	if entry.Examples == nil {
		entry.Examples = []models.TrainingExample{}
	}
	return entry, nil
}

// Store saves entry. Sequence member records are dropped; only their shape is kept.
func (r *Results) Store(ctx context.Context, key string, entry Entry) error {
	slim := make([]models.ShoppingSequence, len(entry.Sequences))
	for i, seq := range entry.Sequences {
		seq.Interactions = nil
		slim[i] = seq
	}
	entry.Sequences = slim
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return r.provider.Set(ctx, key, payload, r.ttl)
}

// Close closes the underlying provider.
func (r *Results) Close() error {
	return r.provider.Close()
}

// Fingerprint hashes every value that shapes synthesis output.
func Fingerprint(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("fingerprint: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// SessionDigest hashes the whole session, id included, since example ids derive
// from it.
func SessionDigest(session models.Session) (string, error) {
	h := sha256.New()
	if err := json.NewEncoder(h).Encode(session); err != nil {
		return "", fmt.Errorf("digest session %s: %w", session.ID, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Package output writes training examples as line-delimited JSON, one example per
// line, in the order they are handed over.
package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// Writer is safe for concurrent use; each Write call's examples stay contiguous.
type Writer struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	enc     *json.Encoder
	written int
}

// NewWriter wraps w. Call Flush once all examples are written.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	// selectors such as a[href*="cart"] must stay byte-for-byte readable
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc}
}

// Write encodes examples in order.
func (w *Writer) Write(examples []models.TrainingExample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range examples {
		if err := w.enc.Encode(&examples[i]); err != nil {
			return fmt.Errorf("encode example %s: %w", examples[i].Context.ExampleID, err)
		}
		w.written++
	}
	return nil
}

// Flush pushes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Written returns the number of examples encoded so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Marshal renders examples as JSONL bytes.
func Marshal(examples []models.TrainingExample) ([]byte, error) {
	var b bytes.Buffer
	w := NewWriter(&b)
	if err := w.Write(examples); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

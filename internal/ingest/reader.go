package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// MaxLineBytes bounds a single JSONL session line.
const MaxLineBytes = 32 << 20

// LineError reports a session line that could not be decoded. Reading may continue
// after it.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Reader streams sessions from line-delimited JSON, one session per line. Blank
// lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	line    int
}

// NewReader wraps r.
func NewReader(logger *slog.Logger, r io.Reader) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Reader{scanner: scanner, logger: logger}
}

// Next returns the next session. It returns io.EOF after the last line and a
// *LineError for undecodable lines; any other error is fatal for the stream.
func (r *Reader) Next() (models.Session, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		session, err := DecodeWith(r.logger.With(slog.Int("line", r.line)), line)
		if err != nil {
			return models.Session{}, &LineError{Line: r.line, Err: err}
		}
		return session, nil
	}
	if err := r.scanner.Err(); err != nil {
		return models.Session{}, fmt.Errorf("read sessions after line %d: %w", r.line, err)
	}
	return models.Session{}, io.EOF
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int {
	return r.line
}

// IsLineError reports whether err only affects a single line.
func IsLineError(err error) bool {
	var le *LineError
	return errors.As(err, &le)
}

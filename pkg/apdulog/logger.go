package apdulog

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Logger receives traced APDUs. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(r Record)
}

// NoopLogger discards all records.
type NoopLogger struct{}

// Log discards the record.
func (NoopLogger) Log(Record) {}

// StreamLogger writes records to an io.Writer.
type StreamLogger struct {
	closer  io.Closer
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewStreamLogger creates a logger writing to w. Close does not close w.
func NewStreamLogger(w io.Writer) *StreamLogger {
	return &StreamLogger{encoder: NewEncoder(w)}
}

// NewFileLogger creates a logger appending to the file at path, creating
// it with permissions 0644 if needed.
func NewFileLogger(path string) (*StreamLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &StreamLogger{closer: f, encoder: NewEncoder(f)}, nil
}

// Log writes a record. Encoding errors are ignored.
func (l *StreamLogger) Log(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	_ = l.encoder.Encode(r)
}

// Close stops the logger and closes the file it owns. Subsequent Log calls
// are ignored; Close is idempotent.
func (l *StreamLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*StreamLogger)(nil)
)

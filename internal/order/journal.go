package order

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mtfbot/internal/signal"
)

// Status is the lifecycle state of a journaled order.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusOpen    Status = "OPEN"
	StatusFailed  Status = "FAILED"
)

// Entry is one journaled order attempt.
type Entry struct {
	Symbol  string                 `json:"symbol"`
	OrderID string                 `json:"order_id"`
	Side    signal.Side            `json:"side"`
	Status  Status                 `json:"status"`
	Context map[string]interface{} `json:"context,omitempty"`
	Ts      time.Time              `json:"ts"`
}

// Sink persists flushed journal entries.
type Sink interface {
	Write(entries []Entry) error
}

// JSONLSink appends entries as JSON lines for later analysis.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink creates/opens the target file and returns a sink.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Write appends each entry as one JSON line.
func (s *JSONLSink) Write(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if err := s.enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the file handle.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Journal buffers order entries in a bounded queue. Beyond capacity the
// oldest entry is dropped with a warning; reaching the flush threshold
// drains the queue to the sink. Journal failures are logged and never
// propagated to the order path.
type Journal struct {
	log     zerolog.Logger
	sink    Sink
	cap     int
	flushAt int

	mu      sync.Mutex
	entries []Entry
}

// NewJournal builds a journal; capacity and flushThreshold get defaults
// when non-positive.
func NewJournal(log zerolog.Logger, sink Sink, capacity, flushThreshold int) *Journal {
	if capacity <= 0 {
		capacity = 1000
	}
	if flushThreshold <= 0 || flushThreshold > capacity {
		flushThreshold = capacity
	}
	return &Journal{log: log, sink: sink, cap: capacity, flushAt: flushThreshold}
}

// Record enqueues one entry, dropping the oldest when full.
func (j *Journal) Record(e Entry) {
	j.mu.Lock()
	if len(j.entries) >= j.cap {
		dropped := j.entries[0]
		j.entries = j.entries[1:]
		j.log.Warn().Str("symbol", dropped.Symbol).Str("order_id", dropped.OrderID).Msg("journal full, dropping oldest entry")
	}
	j.entries = append(j.entries, e)
	shouldFlush := j.sink != nil && len(j.entries) >= j.flushAt
	j.mu.Unlock()

	if shouldFlush {
		j.Flush()
	}
}

// MarkOpen flips a buffered PENDING entry to OPEN. Returns false when the
// order id is no longer buffered; the caller then records a fresh OPEN
// entry instead.
func (j *Journal) MarkOpen(orderID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].OrderID == orderID && j.entries[i].Status == StatusPending {
			j.entries[i].Status = StatusOpen
			return true
		}
	}
	return false
}

// Flush drains the queue to the sink. Without a sink the journal is a pure
// bounded buffer and Flush is a no-op. Sink errors are logged, not returned.
func (j *Journal) Flush() {
	if j.sink == nil {
		return
	}
	j.mu.Lock()
	batch := j.entries
	j.entries = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := j.sink.Write(batch); err != nil {
		j.log.Error().Err(err).Int("entries", len(batch)).Msg("journal flush failed")
	}
}

// Len reports the number of buffered entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

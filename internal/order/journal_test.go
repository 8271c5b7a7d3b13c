package order

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfbot/internal/signal"
)

type captureSink struct {
	batches [][]Entry
	err     error
}

func (s *captureSink) Write(entries []Entry) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, entries)
	return nil
}

func entryFor(id string) Entry {
	return Entry{Symbol: "BTCUSDT", OrderID: id, Side: signal.Long, Status: StatusPending, Ts: time.Now()}
}

func TestJournalFlushAtThreshold(t *testing.T) {
	sink := &captureSink{}
	j := NewJournal(zerolog.Nop(), sink, 10, 3)

	j.Record(entryFor("a"))
	j.Record(entryFor("b"))
	assert.Empty(t, sink.batches, "below threshold, nothing flushed")

	j.Record(entryFor("c"))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 3)
	assert.Equal(t, 0, j.Len())
}

func TestJournalDropsOldestWhenFull(t *testing.T) {
	// No sink: the journal is a bounded buffer and never flushes itself.
	j := NewJournal(zerolog.Nop(), nil, 3, 3)

	for _, id := range []string{"a", "b", "c", "d"} {
		j.Record(entryFor(id))
	}
	assert.Equal(t, 3, j.Len())
	assert.False(t, j.MarkOpen("a"), "oldest entry must have been dropped")
	assert.True(t, j.MarkOpen("d"))
}

func TestJournalMarkOpen(t *testing.T) {
	sink := &captureSink{}
	j := NewJournal(zerolog.Nop(), sink, 10, 10)

	j.Record(entryFor("a"))
	j.Record(entryFor("b"))

	assert.True(t, j.MarkOpen("a"))
	assert.False(t, j.MarkOpen("missing"))

	j.Flush()
	require.Len(t, sink.batches, 1)
	var statusA Status
	for _, e := range sink.batches[0] {
		if e.OrderID == "a" {
			statusA = e.Status
		}
	}
	assert.Equal(t, StatusOpen, statusA)
}

func TestJournalFlushFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: os.ErrPermission}
	j := NewJournal(zerolog.Nop(), sink, 10, 1)

	// Must not panic or propagate; the entry is lost with a logged error.
	j.Record(entryFor("a"))
	assert.Equal(t, 0, j.Len())
}

func TestJSONLSinkWritesOneLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "orders.jsonl")
	sink, err := NewJSONLSink(path)
	require.NoError(t, err)
	defer sink.Close()

	entries := []Entry{entryFor("a"), entryFor("b")}
	require.NoError(t, sink.Write(entries))
	require.NoError(t, sink.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines = append(lines, e)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].OrderID)
	assert.Equal(t, "BTCUSDT", lines[1].Symbol)
}

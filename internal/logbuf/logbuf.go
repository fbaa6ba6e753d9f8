// Package logbuf keeps a bounded in-memory tail of the process log so
// the HTTP API can expose recent activity without touching disk.
package logbuf

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// Buffer is a thread-safe ring of the most recent log entries. It
// implements io.Writer so it can sit alongside the console writer in an
// io.MultiWriter.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int
	count   int
}

// New creates a buffer holding up to size entries.
func New(size int) *Buffer {
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write implements io.Writer. Each write is assumed to be one zerolog
// JSON line; unparseable input is kept raw.
func (b *Buffer) Write(p []byte) (int, error) {
	entry := Entry{
		Timestamp: time.Now(),
		Level:     "info",
		Raw:       string(p),
	}

	var line struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p, &line); err == nil {
		if line.Level != "" {
			entry.Level = line.Level
		}
		entry.Message = line.Message
	}
	if entry.Message == "" {
		entry.Message = entry.Raw
	}

	b.mu.Lock()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()

	return len(p), nil
}

// Entries returns the buffered entries in chronological order.
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, b.count)
	if b.count == 0 {
		return result
	}

	start := 0
	if b.count == b.size {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.size]
	}
	return result
}

// Recent returns the newest n entries in chronological order.
func (b *Buffer) Recent(n int) []Entry {
	entries := b.Entries()
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

package logbuf

import (
	"fmt"
	"testing"
)

func TestBufferParsesZerologLines(t *testing.T) {
	b := New(10)

	line := `{"level":"warn","component":"poller","message":"Poll cycle failed"}` + "\n"
	if _, err := b.Write([]byte(line)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries := b.Entries()
	if len(entries) != 1 {
		t.Fatalf("%d entries, want 1", len(entries))
	}
	if entries[0].Level != "warn" {
		t.Errorf("Level = %s, want warn", entries[0].Level)
	}
	if entries[0].Message != "Poll cycle failed" {
		t.Errorf("Message = %q", entries[0].Message)
	}
}

func TestBufferKeepsUnparseableRaw(t *testing.T) {
	b := New(10)
	b.Write([]byte("plain text line"))

	entries := b.Entries()
	if len(entries) != 1 || entries[0].Message != "plain text line" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Level != "info" {
		t.Errorf("Level = %s, want info fallback", entries[0].Level)
	}
}

func TestBufferWrapsAndOrders(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(b, `{"level":"info","message":"entry %d"}`, i)
	}

	entries := b.Entries()
	if len(entries) != 3 {
		t.Fatalf("%d entries after wrap, want 3", len(entries))
	}
	for i, want := range []string{"entry 2", "entry 3", "entry 4"} {
		if entries[i].Message != want {
			t.Errorf("entries[%d].Message = %q, want %q", i, entries[i].Message, want)
		}
	}

	recent := b.Recent(2)
	if len(recent) != 2 || recent[1].Message != "entry 4" {
		t.Errorf("Recent(2) = %+v", recent)
	}
}

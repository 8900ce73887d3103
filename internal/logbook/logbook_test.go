package logbook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layerdeck.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestDebugIsDroppedUnlessEnabled(t *testing.T) {
	dir := t.TempDir()
	quiet, err := New(filepath.Join(dir, "quiet.log"))
	if err != nil {
		t.Fatal(err)
	}
	quiet.Debug("hidden")
	if lines, total := quiet.Tail(10); total != 0 || lines != nil {
		t.Fatalf("debug entry leaked: %v", lines)
	}

	stamp := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)
	loud, err := New(filepath.Join(dir, "loud.log"), WithDebug(true), WithClock(func() time.Time { return stamp }))
	if err != nil {
		t.Fatal(err)
	}
	loud.Debug("drag %s", "a1")
	loud.Printf("bridge listening on %s\n", ":8765")
	data, err := os.ReadFile(loud.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := "2024-03-09T08:07:06Z DEBUG drag a1\n2024-03-09T08:07:06Z INFO  bridge listening on :8765\n"
	if string(data) != want {
		t.Fatalf("log contents = %q, want %q", data, want)
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Warn("ignored")
	if book.Path() != "" {
		t.Fatalf("nil path should be empty")
	}
	if lines, total := book.Tail(2); lines != nil || total != 0 {
		t.Fatalf("nil tail = %v, %d", lines, total)
	}
}

package main

import (
	"fmt"
	"io"
	"sync"

	"inspira/board"
	"inspira/transcriber"
)

// consoleSink is the plain-line frontend: one line per pipeline event.
// Interim transcripts rewrite in place; everything else appends.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	fmt.Fprintf(s.out, format+"\n", args...)
	s.mu.Unlock()
}

func (s *consoleSink) ListeningChanged(listening bool) {
	if listening {
		s.printf("● listening — speak, pause to mint a tile")
	} else {
		s.printf("○ stopped")
	}
}

func (s *consoleSink) StreamState(state transcriber.State) {
	s.printf("  [stream: %s]", state)
}

func (s *consoleSink) InterimTranscript(text string) {
	s.mu.Lock()
	fmt.Fprintf(s.out, "\r… %s\x1b[K\r", text)
	s.mu.Unlock()
}

func (s *consoleSink) TileAdded(t board.Tile) {
	s.printf("+ [%s|%s p%d] %s — %s (at %.0f,%.0f)",
		t.Category, t.Style.Palette, t.Style.Priority, t.Content.Title, t.Content.Text, t.X, t.Y)
	for _, link := range t.Content.Links {
		s.printf("    %s", link)
	}
}

func (s *consoleSink) TileExpired(t board.Tile) {
	s.printf("- expired: %s", t.Content.Title)
}

func (s *consoleSink) TileDismissed(id string) {
	s.printf("- dismissed: %s", id)
}

func (s *consoleSink) SilenceWarning(active bool) {
	if active {
		s.printf("! no voice detected")
	} else {
		s.printf("  voice detected again")
	}
}

func (s *consoleSink) AudioLevel(float64) {}

func (s *consoleSink) BlockingError(msg string) {
	s.printf("ERROR: %s", msg)
}

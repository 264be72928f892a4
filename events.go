package main

import (
	"inspira/board"
	"inspira/transcriber"
)

// EventSink abstracts the display layer so the console frontend and any
// future board renderer receive the same pipeline events.
type EventSink interface {
	ListeningChanged(listening bool)
	StreamState(state transcriber.State)
	InterimTranscript(text string)
	TileAdded(t board.Tile)
	TileExpired(t board.Tile)
	TileDismissed(id string)
	SilenceWarning(active bool)
	AudioLevel(level float64)
	BlockingError(msg string)
}

// nopSink swallows everything; tests that don't care about display use it.
type nopSink struct{}

func (nopSink) ListeningChanged(bool)         {}
func (nopSink) StreamState(transcriber.State) {}
func (nopSink) InterimTranscript(string)      {}
func (nopSink) TileAdded(board.Tile)          {}
func (nopSink) TileExpired(board.Tile)        {}
func (nopSink) TileDismissed(string)          {}
func (nopSink) SilenceWarning(bool)           {}
func (nopSink) AudioLevel(float64)            {}
func (nopSink) BlockingError(string)          {}

// Package diag keeps the in-app diagnostic record ring exposed read-only
// to the debug viewer collaborator. It is operational plumbing, not
// business state: appends are capped, newest first, and the only mutation
// besides append is a full clear.
package diag

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"inspira/board"
)

// MaxEntries is the ring cap; older records fall off the end.
const MaxEntries = 200

type EntryType string

const (
	TypeTranscript       EntryType = "transcript"
	TypeInfo             EntryType = "info"
	TypeStreamEvent      EntryType = "stream_event"
	TypeStreamTranscript EntryType = "stream_transcript"
	TypeStreamMetadata   EntryType = "stream_metadata"
	TypeStreamError      EntryType = "stream_error"
	TypeSynthPrompt      EntryType = "synth_prompt"
	TypeSynthRaw         EntryType = "synth_raw_response"
	TypeSynthParsed      EntryType = "synth_parsed_response"
	TypeSynthTile        EntryType = "synth_final_tile"
	TypeSynthError       EntryType = "synth_error"
)

// Payload is the tagged union of known record shapes. Producers with truly
// unstructured data fall back to Blob.
type Payload interface{ payload() }

// Message is a plain text payload.
type Message string

// TranscriptPayload records a transcript fragment event.
type TranscriptPayload struct {
	Transcript string
	Final      bool
	Confidence float64
}

// MetadataPayload records an intelligence metadata event.
type MetadataPayload struct {
	Summary  string
	Topics   []string
	Language string
}

// UtterancePayload records a drained utterance.
type UtterancePayload struct {
	Transcript string
	Summary    string
	Topics     []string
}

// PromptPayload records an outgoing synthesis prompt.
type PromptPayload struct {
	Prompt     string
	Transcript string
}

// TilePayload records a created tile (success or error fallback).
type TilePayload struct {
	Tile board.Tile
}

// ErrorPayload records a failure with optional context.
type ErrorPayload struct {
	Message string
	Context string
}

// Blob is the opaque fallback for unstructured data.
type Blob struct {
	Raw string
}

func (Message) payload()           {}
func (TranscriptPayload) payload() {}
func (MetadataPayload) payload()   {}
func (UtterancePayload) payload()  {}
func (PromptPayload) payload()     {}
func (TilePayload) payload()       {}
func (ErrorPayload) payload()      {}
func (Blob) payload()              {}

type Entry struct {
	ID    string
	Time  time.Time
	Type  EntryType
	Title string
	Data  Payload
}

// Log is the append-with-cap entry ring.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	hook    func(Entry) // mirror to the file logger; called outside the lock
}

func NewLog() *Log {
	return &Log{}
}

// OnAppend registers a mirror hook, typically the zerolog file logger.
func (l *Log) OnAppend(fn func(Entry)) {
	l.mu.Lock()
	l.hook = fn
	l.mu.Unlock()
}

func (l *Log) Add(t EntryType, title string, data Payload) {
	e := Entry{
		ID:    uuid.NewString(),
		Time:  time.Now(),
		Type:  t,
		Title: title,
		Data:  data,
	}
	l.mu.Lock()
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > MaxEntries {
		l.entries = l.entries[:MaxEntries]
	}
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		hook(e)
	}
}

// Entries returns a newest-first snapshot for the viewer.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Package transcriber manages the live speech-to-text session: connect,
// stream audio, receive transcript and intelligence events, disconnect.
// The Controller is a state machine; everything the caller sees arrives
// through Handlers callbacks in the order the session emits it.
package transcriber

import (
	"context"
	"strings"

	"inspira/audio"
)

// State is the connection lifecycle. Error is reachable from any non-idle
// state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// Word carries per-word timing from the service.
type Word struct {
	Word       string
	Start      float64
	End        float64
	Confidence float64
	Punctuated string
}

// Result is one transcript fragment, interim or final.
type Result struct {
	Transcript  string
	Confidence  float64
	IsFinal     bool
	SpeechFinal bool
	Words       []Word
}

// Metadata is the intelligence side channel: summary, topics, detected
// language. Fields are empty when the event did not carry them.
type Metadata struct {
	Summary  string
	Topics   []string
	Language string
}

// UtteranceEnd signals detected end-of-speech silence.
type UtteranceEnd struct {
	LastWordEnd float64
}

// Handlers receive session events. Nil members are skipped. All callbacks
// for one session are invoked from a single goroutine, preserving arrival
// order.
type Handlers struct {
	OnOpen         func()
	OnClose        func()
	OnTranscript   func(Result)
	OnUtteranceEnd func(UtteranceEnd)
	OnMetadata     func(Metadata)
	OnError        func(error)
	OnStateChange  func(State)
}

// Config selects the streaming model and audio shape.
type Config struct {
	APIKey     string
	Model      string // default nova-2-general
	Language   string // default en-US
	SampleRate int
	Channels   int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2-general"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.SampleRate == 0 {
		c.SampleRate = audio.SampleRate
	}
	if c.Channels == 0 {
		c.Channels = audio.Channels
	}
	return c
}

// EventKind discriminates raw session events.
type EventKind int

const (
	EventTranscript EventKind = iota
	EventUtteranceEnd
	EventMetadata
)

// Event is one decoded message from the raw session.
type Event struct {
	Kind         EventKind
	Result       Result
	UtteranceEnd UtteranceEnd
	Metadata     Metadata
}

// RawSession is the wire-level streaming connection. Recv blocks until the
// next event or a terminal error; after CloseSend the server acknowledges
// by closing, which surfaces as a Recv error.
type RawSession interface {
	Send(chunk []byte) error
	CloseSend() error
	Recv() (Event, error)
	Close() error
}

// DialFunc opens a raw session.
type DialFunc func(ctx context.Context, cfg Config) (RawSession, error)

var authMarkers = []string{"401", "unauthorized", "auth"}

// IsAuthError reports whether the error indicates an authentication
// failure. Callers use it to permanently demote the service readiness
// flag; other errors are retryable.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

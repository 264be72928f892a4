// Package utterance buffers incremental transcript fragments and
// side-channel intelligence for the speech segment currently being spoken,
// and decides when that segment is complete enough to hand to synthesis.
package utterance

import (
	"strings"
	"sync"
	"time"
)

// DebounceDelay is how long after an utterance-end signal the accumulator
// waits before finalizing; a new signal inside the window restarts it.
const DebounceDelay = 300 * time.Millisecond

// MinLength is the shortest drained transcript worth a synthesis call.
const MinLength = 3

// Input is the drained utterance handed to the synthesis client.
type Input struct {
	Transcript string
	Summary    string
	Topics     []string
}

// Accumulator holds the single in-flight utterance. Final transcript
// fragments append; summary and topics overwrite. Finalization drains
// everything atomically, so at most one synthesis request is issued per
// debounce cycle.
type Accumulator struct {
	mu         sync.Mutex
	transcript strings.Builder
	summary    string
	topics     []string
	timer      *time.Timer

	finalize func(Input)
	skipped  func(transcript string) // too-short drains, for diagnostics
}

func NewAccumulator(finalize func(Input)) *Accumulator {
	return &Accumulator{finalize: finalize}
}

// OnSkipped registers a callback for drains discarded as too short.
func (a *Accumulator) OnSkipped(fn func(transcript string)) {
	a.mu.Lock()
	a.skipped = fn
	a.mu.Unlock()
}

// AddFinal appends a final transcript fragment. Interim fragments are
// display-only and never reach the accumulator.
func (a *Accumulator) AddFinal(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.transcript.WriteString(fragment)
	a.transcript.WriteString(" ")
	a.mu.Unlock()
}

// SetSummary overwrites the stored summary; metadata events replace, not
// append.
func (a *Accumulator) SetSummary(summary string) {
	if summary == "" {
		return
	}
	a.mu.Lock()
	a.summary = summary
	a.mu.Unlock()
}

// SetTopics overwrites the stored topic labels.
func (a *Accumulator) SetTopics(topics []string) {
	if len(topics) == 0 {
		return
	}
	a.mu.Lock()
	a.topics = append([]string(nil), topics...)
	a.mu.Unlock()
}

// UtteranceEnd (re)starts the debounce timer when there is buffered text.
// Rapid repeated signals coalesce into a single finalization.
func (a *Accumulator) UtteranceEnd() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if strings.TrimSpace(a.transcript.String()) == "" {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(DebounceDelay, a.Flush)
}

// Flush finalizes immediately, bypassing any pending debounce. Called on
// timer fire and on connection close so speech is not dropped when the
// session ends mid-utterance.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	in, discarded, ok := a.drainLocked()
	finalize, skipped := a.finalize, a.skipped
	a.mu.Unlock()

	if !ok {
		if skipped != nil {
			skipped(discarded)
		}
		return
	}
	if finalize != nil {
		finalize(in)
	}
}

// Pending reports whether any transcript text is buffered.
func (a *Accumulator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(a.transcript.String()) != ""
}

// Reset discards all buffered state and any pending timer. Used when a new
// listening session starts.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.transcript.Reset()
	a.summary = ""
	a.topics = nil
	a.mu.Unlock()
}

// drainLocked reads and clears the buffer in one step. Transcripts shorter
// than MinLength after trimming are discarded rather than synthesized.
func (a *Accumulator) drainLocked() (in Input, discarded string, ok bool) {
	raw := a.transcript.String()
	summary := a.summary
	topics := a.topics
	a.transcript.Reset()
	a.summary = ""
	a.topics = nil

	if trimmed := strings.TrimSpace(raw); len(trimmed) < MinLength {
		return Input{}, trimmed, false
	}
	return Input{Transcript: raw, Summary: summary, Topics: topics}, "", true
}

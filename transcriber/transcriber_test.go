package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	states  []State
	opens   int
	closes  int
	results []Result
	ends    []UtteranceEnd
	meta    []Metadata
	errs    []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnOpen:         func() { r.mu.Lock(); r.opens++; r.mu.Unlock() },
		OnClose:        func() { r.mu.Lock(); r.closes++; r.mu.Unlock() },
		OnTranscript:   func(res Result) { r.mu.Lock(); r.results = append(r.results, res); r.mu.Unlock() },
		OnUtteranceEnd: func(ue UtteranceEnd) { r.mu.Lock(); r.ends = append(r.ends, ue); r.mu.Unlock() },
		OnMetadata:     func(m Metadata) { r.mu.Lock(); r.meta = append(r.meta, m); r.mu.Unlock() },
		OnError:        func(err error) { r.mu.Lock(); r.errs = append(r.errs, err); r.mu.Unlock() },
		OnStateChange:  func(s State) { r.mu.Lock(); r.states = append(r.states, s); r.mu.Unlock() },
	}
}

func (r *recorder) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, s := range r.states {
			if s == want {
				r.mu.Unlock()
				return
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %q never reached (saw %v)", want, r.states)
}

func testConfig() Config {
	return Config{APIKey: "test-key", SampleRate: 16000, Channels: 1}
}

func TestStartWithoutKeySurfacesError(t *testing.T) {
	r := &recorder{}
	c := NewWithDial(Config{}, r.handlers(), FailingDialer(errors.New("should not dial")))
	c.Start(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) != 1 || !errors.Is(r.errs[0], ErrNoAPIKey) {
		t.Fatalf("errs = %v, want ErrNoAPIKey", r.errs)
	}
	if c.State() != StateError {
		t.Errorf("state = %q, want error", c.State())
	}
}

func TestDialFailure(t *testing.T) {
	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), FailingDialer(errors.New("connection refused")))
	c.Start(context.Background())
	r.waitState(t, StateError)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(r.errs))
	}
	if r.opens != 0 {
		t.Error("OnOpen fired on a failed dial")
	}
}

func TestEventsDeliveredInOrder(t *testing.T) {
	sess := NewScriptedSession()
	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), sess.Dialer())

	c.Start(context.Background())
	r.waitState(t, StateOpen)

	sess.Emit(Event{Kind: EventTranscript, Result: Result{Transcript: "hello", IsFinal: false}})
	sess.Emit(Event{Kind: EventTranscript, Result: Result{Transcript: "hello world", IsFinal: true}})
	sess.Emit(Event{Kind: EventMetadata, Metadata: Metadata{Summary: "greeting", Topics: []string{"smalltalk"}}})
	sess.Emit(Event{Kind: EventUtteranceEnd, UtteranceEnd: UtteranceEnd{LastWordEnd: 1.5}})
	sess.EndStream()

	r.waitState(t, StateError) // unexpected server close surfaces as error
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) != 2 || r.results[0].IsFinal || !r.results[1].IsFinal {
		t.Fatalf("results = %+v", r.results)
	}
	if len(r.meta) != 1 || r.meta[0].Summary != "greeting" {
		t.Fatalf("meta = %+v", r.meta)
	}
	if len(r.ends) != 1 || r.ends[0].LastWordEnd != 1.5 {
		t.Fatalf("ends = %+v", r.ends)
	}
	if r.closes != 1 {
		t.Errorf("closes = %d, want 1 (close always fires so buffered speech flushes)", r.closes)
	}
}

func TestFeedChunksAudioOnlyWhileOpen(t *testing.T) {
	sess := NewScriptedSession()
	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), sess.Dialer())

	// Before start: dropped.
	c.Feed(make([]byte, 4096))

	c.Start(context.Background())
	r.waitState(t, StateOpen)

	chunk := c.chunkBytes()
	c.Feed(make([]byte, chunk+chunk/2))
	deadline := time.Now().Add(time.Second)
	for len(sess.Sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sent := sess.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d chunks, want 1 (remainder stays buffered)", len(sent))
	}
	if len(sent[0]) != chunk {
		t.Errorf("chunk size = %d, want %d", len(sent[0]), chunk)
	}

	c.Stop()
	r.waitState(t, StateClosed)

	// After close: dropped.
	c.Feed(make([]byte, 2*chunk))
	time.Sleep(20 * time.Millisecond)
	if len(sess.Sent()) != 1 {
		t.Error("audio fed after close was forwarded")
	}
}

func TestGracefulStop(t *testing.T) {
	sess := NewScriptedSession()
	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), sess.Dialer())

	c.Start(context.Background())
	r.waitState(t, StateOpen)
	c.Stop()
	r.waitState(t, StateClosing)
	r.waitState(t, StateClosed)

	if !sess.CloseSendCalled() {
		t.Error("graceful finish was never requested")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closes != 1 {
		t.Errorf("closes = %d, want 1", r.closes)
	}
	if len(r.errs) != 0 {
		t.Errorf("graceful stop produced errors: %v", r.errs)
	}
}

func TestStopWithoutConnectionIsNoop(t *testing.T) {
	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), FailingDialer(errors.New("unused")))
	c.Stop()
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestRestartDetachesPreviousSession(t *testing.T) {
	first := NewScriptedSession()
	second := NewScriptedSession()
	dials := 0
	dial := func(ctx context.Context, cfg Config) (RawSession, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	}

	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), dial)

	c.Start(context.Background())
	r.waitState(t, StateOpen)
	c.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for dials < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The detached session must not deliver events into the new session.
	first.Emit(Event{Kind: EventTranscript, Result: Result{Transcript: "stale", IsFinal: true}})
	time.Sleep(30 * time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Transcript == "stale" {
			t.Fatal("event from torn-down session was delivered")
		}
	}
}

func TestIsAuthError(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want bool
	}{
		{errors.New("server returned 401"), true},
		{errors.New("Unauthorized access"), true},
		{errors.New("bad auth token"), true},
		{errors.New("connection reset by peer"), false},
		{nil, false},
	} {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatsCountFinalsAndInterims(t *testing.T) {
	sess := NewScriptedSession()
	r := &recorder{}
	c := NewWithDial(testConfig(), r.handlers(), sess.Dialer())
	c.Start(context.Background())
	r.waitState(t, StateOpen)

	for i := range 3 {
		sess.Emit(Event{Kind: EventTranscript, Result: Result{Transcript: fmt.Sprintf("t%d", i), IsFinal: i == 2}})
	}
	c.Stop()
	r.waitState(t, StateClosed)

	stats := c.Stats()
	if stats.RecvMessages != 3 || stats.RecvFinals != 1 || stats.RecvInterims != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

package transcriber

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ChunkDuration is the cadence at which captured audio is forwarded.
	ChunkDuration = 250 * time.Millisecond

	// closeGrace bounds how long Stop waits for the server's close
	// acknowledgment before forcing the connection shut.
	closeGrace = 2 * time.Second

	audioQueueDepth = 128
)

// ErrNoAPIKey is surfaced by Start when the credential is absent.
var ErrNoAPIKey = errors.New("transcription API key is not set")

// Stats counts traffic for the most recent session.
type Stats struct {
	SentChunks   int64
	SentBytes    int64
	RecvMessages int64
	RecvFinals   int64
	RecvInterims int64
}

// Controller drives the streaming connection lifecycle. At most one live
// session exists at a time; Start tears down and detaches any previous
// session before dialing, so a torn-down session can never deliver events
// into the new one.
type Controller struct {
	handlers Handlers
	cfg      Config
	dial     DialFunc

	mu    sync.Mutex
	state State
	cur   *session

	sentChunks   atomic.Int64
	sentBytes    atomic.Int64
	recvMessages atomic.Int64
	recvFinals   atomic.Int64
	recvInterims atomic.Int64
}

// session bundles one connection's moving parts so ownership transfers
// whole on restart.
type session struct {
	raw      RawSession
	audioCh  chan []byte
	sendDone chan struct{}
	recvDone chan struct{}

	feedMu  sync.Mutex
	feedBuf []byte
	stopped bool // audio no longer accepted; audioCh closed

	closing  bool // guarded by Controller.mu; Stop was requested
	detached bool // guarded by Controller.mu; superseded, deliver nothing
}

func New(cfg Config, h Handlers) *Controller {
	return NewWithDial(cfg, h, dialDeepgram)
}

// NewWithDial is New with a custom session dialer; tests inject scripted
// sessions through it.
func NewWithDial(cfg Config, h Handlers, dial DialFunc) *Controller {
	return &Controller{
		handlers: h,
		cfg:      cfg.withDefaults(),
		dial:     dial,
		state:    StateIdle,
	}
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns traffic counters for the session started most recently.
func (c *Controller) Stats() Stats {
	return Stats{
		SentChunks:   c.sentChunks.Load(),
		SentBytes:    c.sentBytes.Load(),
		RecvMessages: c.recvMessages.Load(),
		RecvFinals:   c.recvFinals.Load(),
		RecvInterims: c.recvInterims.Load(),
	}
}

// Start opens a new streaming session. Without a credential it surfaces an
// error event and stays put. Any previous session is fully released first.
func (c *Controller) Start(ctx context.Context) {
	if c.cfg.APIKey == "" {
		c.setState(StateError)
		c.emitError(ErrNoAPIKey)
		return
	}

	c.mu.Lock()
	if prev := c.cur; prev != nil {
		prev.detached = true
		c.cur = nil
		go prev.release()
	}
	s := &session{
		audioCh:  make(chan []byte, audioQueueDepth),
		sendDone: make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	c.cur = s
	c.mu.Unlock()

	c.sentChunks.Store(0)
	c.sentBytes.Store(0)
	c.recvMessages.Store(0)
	c.recvFinals.Store(0)
	c.recvInterims.Store(0)

	c.setState(StateConnecting)

	go func() {
		raw, err := c.dial(ctx, c.cfg)

		c.mu.Lock()
		if c.cur != s {
			c.mu.Unlock()
			if err == nil {
				raw.Close()
			}
			return
		}
		if err != nil {
			c.cur = nil
			c.mu.Unlock()
			c.setState(StateError)
			c.emitError(err)
			return
		}
		if s.closing {
			// Stopped while still connecting.
			c.cur = nil
			c.mu.Unlock()
			raw.Close()
			c.setState(StateClosed)
			c.emitClose()
			return
		}
		s.raw = raw
		c.mu.Unlock()

		c.setState(StateOpen)
		if c.handlers.OnOpen != nil {
			c.handlers.OnOpen()
		}
		go c.runSender(s)
		go c.runReceiver(s)
	}()
}

// Feed accepts captured PCM and forwards it in ChunkDuration-sized chunks.
// Audio arriving before the connection is confirmed open, or after close,
// is dropped — never queued.
func (c *Controller) Feed(pcm []byte) {
	c.mu.Lock()
	s := c.cur
	open := c.state == StateOpen
	c.mu.Unlock()
	if s == nil || !open {
		return
	}
	s.feed(pcm, c.chunkBytes())
}

// Stop requests graceful termination. Audio capture input is cut off
// immediately; the transition to closed and resource teardown happen on
// the server's close acknowledgment, not on return. Stopping with no
// connection is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.cur
	if s == nil {
		c.mu.Unlock()
		return
	}
	s.closing = true
	c.mu.Unlock()

	c.setState(StateClosing)
	s.stopFeed()

	go func() {
		select {
		case <-s.recvDone:
		case <-time.After(closeGrace):
			c.mu.Lock()
			raw := s.raw
			c.mu.Unlock()
			if raw != nil {
				raw.Close()
			}
		}
	}()
}

func (c *Controller) chunkBytes() int {
	bytesPerSecond := c.cfg.SampleRate * c.cfg.Channels * 2
	return bytesPerSecond * int(ChunkDuration.Milliseconds()) / 1000
}

func (c *Controller) runSender(s *session) {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.raw.Send(chunk); err != nil {
			return // receiver surfaces the failure
		}
		c.sentChunks.Add(1)
		c.sentBytes.Add(int64(len(chunk)))
	}
	// Audio channel drained: ask the server to finalize and close.
	s.raw.CloseSend()
}

func (c *Controller) runReceiver(s *session) {
	defer close(s.recvDone)
	for {
		ev, err := s.raw.Recv()
		if err != nil {
			c.finishSession(s, err)
			return
		}

		c.mu.Lock()
		detached := s.detached
		c.mu.Unlock()
		if detached {
			return
		}

		c.recvMessages.Add(1)
		c.dispatch(ev)
	}
}

// finishSession handles the terminal Recv error: a close acknowledgment
// when stopping, a transport failure otherwise. OnClose fires in both
// cases so a mid-utterance buffer is never silently dropped.
func (c *Controller) finishSession(s *session, err error) {
	c.mu.Lock()
	closing := s.closing
	detached := s.detached
	if c.cur == s {
		c.cur = nil
	}
	c.mu.Unlock()

	s.stopFeed()
	s.raw.Close()
	if detached {
		return
	}

	if closing {
		c.setState(StateClosed)
	} else {
		c.setState(StateError)
		c.emitError(err)
	}
	c.emitClose()
}

func (c *Controller) dispatch(ev Event) {
	switch ev.Kind {
	case EventTranscript:
		if ev.Result.IsFinal || ev.Result.SpeechFinal {
			c.recvFinals.Add(1)
		} else {
			c.recvInterims.Add(1)
		}
		if c.handlers.OnTranscript != nil {
			c.handlers.OnTranscript(ev.Result)
		}
	case EventUtteranceEnd:
		if c.handlers.OnUtteranceEnd != nil {
			c.handlers.OnUtteranceEnd(ev.UtteranceEnd)
		}
	case EventMetadata:
		if c.handlers.OnMetadata != nil {
			c.handlers.OnMetadata(ev.Metadata)
		}
	}
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(next)
	}
}

func (c *Controller) emitError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *Controller) emitClose() {
	if c.handlers.OnClose != nil {
		c.handlers.OnClose()
	}
}

func (s *session) feed(pcm []byte, chunkSize int) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.stopped {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= chunkSize {
		chunk := make([]byte, chunkSize)
		copy(chunk, s.feedBuf[:chunkSize])
		s.feedBuf = s.feedBuf[chunkSize:]
		select {
		case s.audioCh <- chunk:
		default:
			// Sender backed up; drop rather than stall the capture callback.
		}
	}
}

func (s *session) stopFeed() {
	s.feedMu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.audioCh)
	}
	s.feedMu.Unlock()
}

// release discards a superseded session: no events, no audio, connection
// closed.
func (s *session) release() {
	s.stopFeed()
	if s.raw != nil {
		s.raw.Close()
	}
}

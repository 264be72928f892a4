package transcriber

import (
	"context"
	"io"
	"sync"
)

// ScriptedSession is an in-memory RawSession driven by tests: events are
// queued with Emit/Fail, sent audio is recorded, and CloseSend is answered
// with a server close acknowledgment unless AckClose is disabled.
type ScriptedSession struct {
	AckClose bool

	queue chan scriptItem

	mu        sync.Mutex
	sent      [][]byte
	closeSent bool
	closed    bool
}

type scriptItem struct {
	ev  Event
	err error
}

func NewScriptedSession() *ScriptedSession {
	return &ScriptedSession{AckClose: true, queue: make(chan scriptItem, 64)}
}

// Dialer returns a DialFunc that hands out this session.
func (s *ScriptedSession) Dialer() DialFunc {
	return func(context.Context, Config) (RawSession, error) {
		return s, nil
	}
}

// FailingDialer returns a DialFunc whose dial always fails.
func FailingDialer(err error) DialFunc {
	return func(context.Context, Config) (RawSession, error) {
		return nil, err
	}
}

// Emit queues an event for Recv.
func (s *ScriptedSession) Emit(ev Event) {
	s.queue <- scriptItem{ev: ev}
}

// Fail queues a terminal error for Recv.
func (s *ScriptedSession) Fail(err error) {
	s.queue <- scriptItem{err: err}
}

// EndStream queues the server's close acknowledgment.
func (s *ScriptedSession) EndStream() {
	s.queue <- scriptItem{err: io.EOF}
}

// Sent returns a copy of all audio chunks received so far.
func (s *ScriptedSession) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// CloseSendCalled reports whether a graceful finish was requested.
func (s *ScriptedSession) CloseSendCalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSent
}

func (s *ScriptedSession) Send(chunk []byte) error {
	s.mu.Lock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.sent = append(s.sent, cp)
	s.mu.Unlock()
	return nil
}

func (s *ScriptedSession) CloseSend() error {
	s.mu.Lock()
	s.closeSent = true
	ack := s.AckClose
	s.mu.Unlock()
	if ack {
		s.EndStream()
	}
	return nil
}

func (s *ScriptedSession) Recv() (Event, error) {
	item := <-s.queue
	return item.ev, item.err
}

func (s *ScriptedSession) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		// Unblock any Recv still waiting.
		select {
		case s.queue <- scriptItem{err: io.EOF}:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

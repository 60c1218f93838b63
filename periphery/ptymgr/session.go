// Package ptymgr implements Periphery's PTY session manager (spec.md
// §4.8): one real pseudo-terminal per named session, shared across
// attaches requesting the same shell, with a child reaper, stdin pump,
// and broadcast stdout pump. Grounded on original_source/bin/periphery/
// src/pty.rs — get_or_insert/shell-mismatch, 1 MiB rolling history,
// cancellation-token propagation. Uses github.com/creack/pty (out-of-pack;
// no example repo allocates a real PTY, and a stdlib pipe cannot provide
// terminal resize semantics).
package ptymgr

import (
	"os/exec"
	"sync"
)

// maxHistoryBytes is the rolling stdout history cap (spec.md §3 "PTY
// session", §4.8).
const maxHistoryBytes = 1 << 20

// History is a rolling byte buffer, evicting from the front once full.
type History struct {
	mu  sync.Mutex
	buf []byte
}

func newHistory() *History {
	return &History{buf: make([]byte, 0, maxHistoryBytes)}
}

func (h *History) push(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = append(h.buf, data...)
	if overflow := len(h.buf) - maxHistoryBytes; overflow > 0 {
		h.buf = h.buf[overflow:]
	}
}

// Bytes returns a copy of the current history contents.
func (h *History) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out
}

// Resize is a terminal dimension change request.
type Resize struct {
	Rows uint16
	Cols uint16
}

// StdinMsg is one message on a session's stdin pump: exactly one of Bytes
// or Resize is set (spec.md §4.8 "Message kinds").
type StdinMsg struct {
	Bytes  []byte
	Resize *Resize
}

// subscriberBuffer bounds how far a slow stdout subscriber can lag before
// chunks are dropped for it; the pump itself never blocks on a subscriber.
const subscriberBuffer = 256

// Session is one named PTY: a real pseudo-terminal running Shell, with a
// stdin channel, a broadcast stdout fan-out, and a shared cancellation
// signal observed by all three background pumps.
type Session struct {
	Name  string
	Shell string

	cmd *exec.Cmd

	stdin chan StdinMsg

	history *History

	mu          sync.Mutex
	subscribers map[int]chan []byte
	nextSubID   int

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// Subscribe registers a new stdout listener; the returned unsubscribe
// func must be called when the caller is done.
func (s *Session) Subscribe() (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan []byte, subscriberBuffer)
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

func (s *Session) broadcast(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		select {
		case sub <- chunk:
		default:
			// Slow subscriber: drop rather than block the pump.
		}
	}
}

// Stdin sends a message to the session's stdin pump. Returns false if the
// session has already been cancelled.
func (s *Session) Stdin(msg StdinMsg) bool {
	select {
	case s.stdin <- msg:
		return true
	case <-s.cancelCh:
		return false
	}
}

// Cancelled reports whether the session's cancellation token has fired.
func (s *Session) Cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// Cancel fires the cancellation token exactly once; all three pumps
// observe it and exit.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

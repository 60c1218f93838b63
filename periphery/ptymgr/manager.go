package ptymgr

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"
)

// Manager owns the process-wide named-session table (spec.md §9
// "process-wide caches": PTYs are ephemeral per agent, not persisted).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func New() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// ErrShellMismatch is returned by GetOrInsert when an existing session
// under name was created with a different shell.
type ErrShellMismatch struct {
	Name     string
	Expected string
	Got      string
}

func (e *ErrShellMismatch) Error() string {
	return fmt.Sprintf("pty %q: shell mismatch, expected %s got %s", e.Name, e.Expected, e.Got)
}

// GetOrInsert returns the existing session for name if its shell matches,
// or creates and starts a new one (spec.md §4.8).
func (m *Manager) GetOrInsert(name, shell string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[name]; ok {
		if existing.Shell != shell {
			return nil, &ErrShellMismatch{Name: name, Expected: existing.Shell, Got: shell}
		}
		return existing, nil
	}

	session, err := m.start(name, shell)
	if err != nil {
		return nil, err
	}
	m.sessions[name] = session
	return session, nil
}

// Delete cancels and removes a session.
func (m *Manager) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		s.Cancel()
		delete(m.sessions, name)
	}
}

// List returns the names of all currently-tracked sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		out = append(out, name)
	}
	return out
}

// CleanUp prunes cancelled sessions from the table (spec.md §4.8
// "clean_up prunes cancelled sessions").
func (m *Manager) CleanUp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.sessions {
		if s.Cancelled() {
			delete(m.sessions, name)
		}
	}
}

func (m *Manager) start(name, shell string) (*Session, error) {
	cmd := exec.Command(shell)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	s := &Session{
		Name:        name,
		Shell:       shell,
		cmd:         cmd,
		stdin:       make(chan StdinMsg, 8192),
		history:     newHistory(),
		subscribers: make(map[int]chan []byte),
		cancelCh:    make(chan struct{}),
	}

	go reapChild(s, cmd)
	go pumpStdin(s, ptmx)
	go pumpStdout(s, ptmx)

	return s, nil
}

// reapChild polls every 500ms for cancellation while racing the child's
// Wait() completion; either path fires the session's cancellation token
// (spec.md §4.8 "Child reaper").
func reapChild(s *Session, cmd *exec.Cmd) {
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.cancelCh:
			if cmd.Process != nil {
				if err := cmd.Process.Kill(); err != nil {
					log.Debug().Err(err).Str("pty", s.Name).Msg("ptymgr: failed to kill child")
				}
			}
			return
		case <-waitCh:
			s.Cancel()
			return
		case <-ticker.C:
		}
	}
}

// pumpStdin receives StdinMsg from the bounded channel and writes bytes
// or resizes the pty (spec.md §4.8 "Stdin pump").
func pumpStdin(s *Session, ptmx *os.File) {
	for {
		select {
		case <-s.cancelCh:
			return
		case msg := <-s.stdin:
			if msg.Resize != nil {
				if err := pty.Setsize(ptmx, &pty.Winsize{Rows: msg.Resize.Rows, Cols: msg.Resize.Cols}); err != nil {
					log.Debug().Err(err).Str("pty", s.Name).Msg("ptymgr: resize failed")
					s.Cancel()
					return
				}
				continue
			}
			if _, err := ptmx.Write(msg.Bytes); err != nil {
				log.Debug().Err(err).Str("pty", s.Name).Msg("ptymgr: write failed")
				s.Cancel()
				return
			}
		}
	}
}

// pumpStdout reads into an 8 KiB buffer, appends to history, and
// broadcasts each chunk to all subscribers; EOF cancels the session
// (spec.md §4.8 "Stdout pump").
func pumpStdout(s *Session, ptmx *os.File) {
	buf := make([]byte, 8192)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.history.push(chunk)
			s.broadcast(chunk)
		}
		if err != nil {
			s.Cancel()
			return
		}
	}
}

package ptymgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrInsert_SameShellReturnsExistingSession(t *testing.T) {
	m := New()
	s1, err := m.GetOrInsert("t1", "sh")
	require.NoError(t, err)
	defer m.Delete("t1")

	s2, err := m.GetOrInsert("t1", "sh")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestGetOrInsert_ShellMismatchFailsAndKeepsSession(t *testing.T) {
	m := New()
	s1, err := m.GetOrInsert("t1", "sh")
	require.NoError(t, err)
	defer m.Delete("t1")

	_, err = m.GetOrInsert("t1", "zsh")
	require.Error(t, err)
	var mismatch *ErrShellMismatch
	assert.ErrorAs(t, err, &mismatch)

	assert.False(t, s1.Cancelled())
}

func TestDelete_CancelsAndRemovesSession(t *testing.T) {
	m := New()
	s1, err := m.GetOrInsert("t1", "sh")
	require.NoError(t, err)

	m.Delete("t1")
	assert.True(t, s1.Cancelled())
	assert.Empty(t, m.List())
}

func TestStdinAndStdout_EchoRoundTrip(t *testing.T) {
	m := New()
	s, err := m.GetOrInsert("t1", "sh")
	require.NoError(t, err)
	defer m.Delete("t1")

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	ok := s.Stdin(StdinMsg{Bytes: []byte("echo hi\n")})
	require.True(t, ok)

	deadline := time.After(3 * time.Second)
	var got []byte
	for {
		select {
		case chunk := <-ch:
			got = append(got, chunk...)
			if len(got) > 0 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for pty output")
		}
	}
}

func TestCleanUp_PrunesCancelledSessions(t *testing.T) {
	m := New()
	s1, err := m.GetOrInsert("t1", "sh")
	require.NoError(t, err)
	s1.Cancel()

	m.CleanUp()
	assert.Empty(t, m.List())
}

func TestHistory_EvictsFromFrontWhenOverCapacity(t *testing.T) {
	h := newHistory()
	h.push(make([]byte, maxHistoryBytes))
	h.push([]byte("tail"))
	got := h.Bytes()
	assert.Len(t, got, maxHistoryBytes)
	assert.Equal(t, []byte("tail"), got[len(got)-4:])
}

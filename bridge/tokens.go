package bridge

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

const (
	tokenLength = 30
	tokenTTL    = 3 * time.Second
	tokenChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// TerminalAuthTokens is the process-wide single-use token map authorizing
// a WebSocket upgrade (spec.md §3 "Terminal-auth token", §4.10). Per the
// recorded Open Question decision, tokens are consumed on check —
// a failed upgrade attempt requires a fresh CreateTerminalAuthToken call.
type TerminalAuthTokens struct {
	mu     sync.Mutex
	issued map[string]time.Time
}

func NewTerminalAuthTokens() *TerminalAuthTokens {
	return &TerminalAuthTokens{issued: make(map[string]time.Time)}
}

// Issue mints a new random 30-char token valid for 3 s.
func (t *TerminalAuthTokens) Issue() (string, error) {
	token, err := randomToken(tokenLength)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.issued[token] = time.Now().Add(tokenTTL)
	t.mu.Unlock()
	return token, nil
}

// Consume checks and deletes the token atomically; it is valid exactly
// once regardless of outcome.
func (t *TerminalAuthTokens) Consume(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.issued[token]
	delete(t.issued, token)
	return ok && time.Now().Before(expiry)
}

func randomToken(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenChars))))
		if err != nil {
			return "", err
		}
		out[i] = tokenChars[idx.Int64()]
	}
	return string(out), nil
}

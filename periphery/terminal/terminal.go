// Package terminal implements Periphery's sentinel-framed, single-response
// command execution on a named PTY (spec.md §4.9, §6 "Wrapped terminal
// command line"). Grounded on original_source/bin/periphery/src/terminal.rs.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/komodo-run/komodo/periphery/ptymgr"
)

const (
	startSentinel = "__KOMODO_START_OF_OUTPUT__"
	exitPrefix    = "__KOMODO_EXIT_CODE__"
	endSentinel   = "__KOMODO_END_OF_OUTPUT__"
)

// WrapCommand builds the bit-exact wrapped command line (spec.md §6).
func WrapCommand(userCmd string) string {
	return fmt.Sprintf("printf '\\n%s\\n'; %s; rc=$? printf '\\n%s%%d\\n%s\\n' \"$rc\"", startSentinel, userCmd, exitPrefix, endSentinel)
}

// LineSink receives each output line as it streams past the sentinels.
type LineSink func(line string)

// Result is the outcome of one sentinel-framed execution.
type Result struct {
	ExitCode    int
	SawEnd      bool // false means the terminal exited mid-command
}

// Execute subscribes to session's stdout broadcast, writes the wrapped
// command to stdin, skips everything before the start sentinel, streams
// subsequent lines to sink, and stops at the end sentinel (spec.md §4.9).
func Execute(ctx context.Context, session *ptymgr.Session, userCmd string, sink LineSink) (Result, error) {
	lines, unsubscribe := subscribeLines(session)
	defer unsubscribe()

	wrapped := WrapCommand(userCmd)
	if !session.Stdin(ptymgr.StdinMsg{Bytes: []byte(wrapped + "\n")}) {
		return Result{}, fmt.Errorf("terminal: session %q is no longer accepting input", session.Name)
	}

	started := false
	result := Result{ExitCode: -1}

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// Stream ended before __END__: the terminal exited mid-command.
				return result, nil
			}
			if !started {
				if strings.Contains(line, startSentinel) {
					started = true
				}
				continue
			}
			if strings.HasPrefix(line, exitPrefix) {
				code, err := strconv.Atoi(strings.TrimPrefix(line, exitPrefix))
				if err == nil {
					result.ExitCode = code
				}
				continue
			}
			if strings.Contains(line, endSentinel) {
				result.SawEnd = true
				return result, nil
			}
			sink(line)
		}
	}
}

// subscribeLines wraps a PTY session's raw byte broadcast into a
// line-framed channel, since the broadcast delivers arbitrary chunk
// boundaries, not lines.
func subscribeLines(session *ptymgr.Session) (<-chan string, func()) {
	raw, unsubscribe := session.Subscribe()
	lines := make(chan string)

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for chunk := range raw {
			if _, err := pw.Write(chunk); err != nil {
				return
			}
		}
	}()

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return lines, func() {
		unsubscribe()
		pr.Close()
	}
}

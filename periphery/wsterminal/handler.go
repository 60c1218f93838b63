// Package wsterminal exposes Periphery's named PTY sessions over a raw
// WebSocket, the Periphery-side leg of the two-stage upgrade spec.md
// §4.10 describes (Core issues and checks the terminal-auth token; this
// leg only re-checks the ordinary passkey, the same as every other
// Periphery call).
package wsterminal

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/komodo-run/komodo/bridge"
	"github.com/komodo-run/komodo/periphery/ptymgr"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades a request into a bidirectional PTY stream for the
// named session (created if absent), per spec.md §4.8.
type Handler struct {
	Passkey string
	Manager *ptymgr.Manager
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("authorization") != h.Passkey {
		http.Error(w, "invalid passkey", http.StatusUnauthorized)
		return
	}

	name := r.URL.Query().Get("name")
	shell := r.URL.Query().Get("shell")
	if name == "" || shell == "" {
		http.Error(w, "name and shell query params are required", http.StatusBadRequest)
		return
	}

	session, err := h.Manager.GetOrInsert(name, shell)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("wsterminal: upgrade failed")
		return
	}
	defer conn.Close()

	stdout, unsubscribe := session.Subscribe()
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for chunk := range stdout {
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		}
	}()

	for {
		if session.Cancelled() {
			break
		}
		frame, err := bridge.ReadFrame(conn)
		if err != nil {
			break
		}
		switch frame.Kind {
		case bridge.FrameStdin:
			session.Stdin(ptymgr.StdinMsg{Bytes: frame.Stdin})
		case bridge.FrameResize:
			session.Stdin(ptymgr.StdinMsg{Resize: &ptymgr.Resize{
				Rows: frame.Resize.Rows,
				Cols: frame.Resize.Cols,
			}})
		case bridge.FrameIgnored:
			// unknown discriminator: ignore, keep the connection open
		}
	}

	unsubscribe()
	<-writerDone
}

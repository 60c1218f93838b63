package bridge

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DialTerminal opens Periphery's raw PTY WebSocket for one named session,
// authenticated with the passkey header (spec.md §4.10 "two-stage WS
// upgrade": the auth-token check happens on Core's inbound side in
// cmd/komodo-core before this dial, so the Core→Periphery leg re-uses the
// same passkey as every other Periphery call).
func (c *Client) DialTerminal(ctx context.Context, name, shell string) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/terminal?name=" + name + "&shell=" + shell

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if c.HTTP.Transport != nil {
		if transport, ok := c.HTTP.Transport.(*http.Transport); ok && transport.TLSClientConfig != nil {
			dialer.TLSClientConfig = transport.TLSClientConfig
		}
	}

	header := http.Header{}
	header.Set("authorization", c.Passkey)

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	return conn, err
}

// ProxyTerminal bridges a browser-facing connection and the upstream
// Periphery connection until either side closes or ctx is cancelled,
// using LinkedCancel so one leg dying tears down the other (spec.md §5
// "Cancellation & timeouts").
func ProxyTerminal(ctx context.Context, downstream, upstream *websocket.Conn) {
	lc := NewLinkedCancel(ctx)

	go pumpInbound(lc.Outer, lc.CancelOuter, downstream, upstream)
	go pumpInbound(lc.Inner, lc.CancelInner, upstream, downstream)

	<-lc.Outer.Done()
	<-lc.Inner.Done()
}

// pumpInbound copies frames from src to dst until src errs/closes or ctx
// is cancelled, then calls done to unwind the pair.
func pumpInbound(ctx context.Context, done context.CancelFunc, src, dst *websocket.Conn) {
	defer done()
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

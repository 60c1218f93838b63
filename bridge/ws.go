package bridge

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

// Binary discriminator bytes (spec.md §6, §9 "WebSocket binary
// discriminator"): a wire contract between Core and Periphery.
const (
	DiscriminatorStdin  byte = 0x00
	DiscriminatorResize byte = 0xFF
)

// ResizePayload is the JSON body following a 0xFF discriminator.
type ResizePayload struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameStdin FrameKind = iota
	FrameResize
	FrameIgnored // unknown leading byte — not an error, just dropped
)

// Frame is one decoded inbound WebSocket message.
type Frame struct {
	Kind   FrameKind
	Stdin  []byte
	Resize ResizePayload
}

// WriteStdin sends a binary frame with the stdin discriminator.
func WriteStdin(conn *websocket.Conn, data []byte) error {
	return conn.WriteMessage(websocket.BinaryMessage, append([]byte{DiscriminatorStdin}, data...))
}

// WriteResize sends a binary frame with the resize discriminator and a
// JSON {rows,cols} payload.
func WriteResize(conn *websocket.Conn, rows, cols uint16) error {
	payload, err := json.Marshal(ResizePayload{Rows: rows, Cols: cols})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, append([]byte{DiscriminatorResize}, payload...))
}

// ReadFrame decodes one inbound message. Text frames are treated as stdin
// (spec.md §4.10); binary frames dispatch on their leading byte; an
// unknown leading byte yields FrameIgnored rather than an error, per
// spec.md §9 "reject frames with unknown leading byte by ignoring (do not
// close)".
func ReadFrame(conn *websocket.Conn) (Frame, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}

	if msgType == websocket.TextMessage {
		return Frame{Kind: FrameStdin, Stdin: data}, nil
	}

	if len(data) == 0 {
		return Frame{Kind: FrameIgnored}, nil
	}

	switch data[0] {
	case DiscriminatorStdin:
		return Frame{Kind: FrameStdin, Stdin: data[1:]}, nil
	case DiscriminatorResize:
		var resize ResizePayload
		if err := json.Unmarshal(data[1:], &resize); err != nil {
			return Frame{Kind: FrameIgnored}, nil
		}
		return Frame{Kind: FrameResize, Resize: resize}, nil
	default:
		return Frame{Kind: FrameIgnored}, nil
	}
}

// LinkedCancel ties an "outer" (PTY/terminal lifetime) and "inner"
// (socket lifetime) cancellation together: either tripping cancels both
// (spec.md §5 "Cancellation & timeouts").
type LinkedCancel struct {
	Outer       context.Context
	Inner       context.Context
	cancelOuter context.CancelFunc
	cancelInner context.CancelFunc
}

func NewLinkedCancel(parent context.Context) *LinkedCancel {
	outerCtx, cancelOuter := context.WithCancel(parent)
	innerCtx, cancelInner := context.WithCancel(parent)
	lc := &LinkedCancel{Outer: outerCtx, Inner: innerCtx, cancelOuter: cancelOuter, cancelInner: cancelInner}

	go func() {
		<-outerCtx.Done()
		cancelInner()
	}()
	go func() {
		<-innerCtx.Done()
		cancelOuter()
	}()

	return lc
}

func (lc *LinkedCancel) CancelOuter() { lc.cancelOuter() }
func (lc *LinkedCancel) CancelInner() { lc.cancelInner() }

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/theiaos/nodelink/internal/handshake"
	"github.com/theiaos/nodelink/internal/protocol"
)

// Conn is an established gateway connection after the envelope was sent.
// Nodes consume invocations with Next/Respond; operators issue them with
// Invoke.
type Conn struct {
	ws       *websocket.Conn
	envelope handshake.ConnectOptions

	writeMu sync.Mutex
	readMu  sync.Mutex
}

func newConn(ws *websocket.Conn, envelope handshake.ConnectOptions) *Conn {
	return &Conn{ws: ws, envelope: envelope}
}

// Envelope returns the connect envelope this connection was opened with.
func (c *Conn) Envelope() handshake.ConnectOptions { return c.envelope }

// Close tears the connection down.
func (c *Conn) Close() error { return c.ws.Close() }

// Next blocks until the gateway sends the next invocation. The context
// deadline, when set, bounds the read.
func (c *Conn) Next(ctx context.Context) (protocol.Invocation, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.applyReadDeadline(ctx); err != nil {
		return protocol.Invocation{}, err
	}
	var inv protocol.Invocation
	if err := c.ws.ReadJSON(&inv); err != nil {
		return protocol.Invocation{}, fmt.Errorf("client: read invocation: %w", err)
	}
	return inv, nil
}

// Respond answers one invocation previously returned by Next.
func (c *Conn) Respond(res protocol.Result) error {
	return c.writeJSON(res)
}

// Invoke sends a command to the gateway and waits for its result. One
// invocation is in flight at a time.
func (c *Conn) Invoke(ctx context.Context, cmd protocol.Command, params []byte) (protocol.Result, error) {
	inv := protocol.Invocation{ID: uuid.NewString(), Command: cmd, Params: params}
	if err := c.writeJSON(inv); err != nil {
		return protocol.Result{}, err
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if err := c.applyReadDeadline(ctx); err != nil {
			return protocol.Result{}, err
		}
		var res protocol.Result
		if err := c.ws.ReadJSON(&res); err != nil {
			return protocol.Result{}, fmt.Errorf("client: read result: %w", err)
		}
		if res.ID == inv.ID {
			return res, nil
		}
		// Stale result from an abandoned attempt; skip it.
	}
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("client: write frame: %w", err)
	}
	return nil
}

func (c *Conn) applyReadDeadline(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.ws.SetReadDeadline(deadline)
	}
	return c.ws.SetReadDeadline(time.Time{})
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/theiaos/nodelink/internal/constants"
	"github.com/theiaos/nodelink/internal/gate"
	"github.com/theiaos/nodelink/internal/handshake"
	"github.com/theiaos/nodelink/internal/protocol"
)

const (
	// connectResultID marks the synthetic result frame answering the
	// connect envelope.
	connectResultID = "connect"

	maxFrameSize = 512 * 1024
)

// session is one live connection after a validated handshake.
type session struct {
	conn     *websocket.Conn
	envelope handshake.ConnectOptions
	gateConn gate.Conn

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan protocol.Result
}

// acceptSession reads and validates the connect envelope. The first frame
// must arrive within the handshake timeout and must pass both the
// structural rules and the catalog cross-check.
func acceptSession(shutdownCtx context.Context, conn *websocket.Conn) (*session, error) {
	conn.SetReadLimit(maxFrameSize)
	if err := conn.SetReadDeadline(time.Now().Add(constants.WSHandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("gateway: set handshake deadline: %w", err)
	}

	var opts handshake.ConnectOptions
	if err := conn.ReadJSON(&opts); err != nil {
		return nil, fmt.Errorf("gateway: read connect envelope: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("gateway: clear handshake deadline: %w", err)
	}

	if err := validateEnvelope(opts); err != nil {
		writeReject(conn, err.Error())
		return nil, err
	}

	gateConn := gate.Conn{
		Role:   opts.Role,
		Scopes: opts.Scopes,
		Class:  classify(opts.Client.Platform),
	}

	// Defense in depth: a catalog claiming commands this connection could
	// never be granted is a protocol violation, not a request to be
	// filtered down.
	if err := gate.VerifyAdvertised(gateConn, opts.Commands); err != nil {
		writeReject(conn, err.Error())
		return nil, err
	}

	ctx, cancel := context.WithCancel(shutdownCtx)
	return &session{
		conn:     conn,
		envelope: opts,
		gateConn: gateConn,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]chan protocol.Result),
	}, nil
}

// ackConnect confirms the handshake once the session is registered.
func (s *session) ackConnect() error {
	return s.writeJSON(protocol.Result{ID: connectResultID, OK: true})
}

func (s *session) info() NodeInfo {
	return NodeInfo{
		InstanceID:  s.envelope.Client.InstanceID,
		DisplayName: s.envelope.Client.DisplayName,
		Platform:    s.envelope.Client.Platform,
		Version:     s.envelope.Client.Version,
		Class:       s.gateConn.Class,
		Caps:        s.envelope.Caps,
		Commands:    s.envelope.Commands,
		UserAgent:   s.envelope.UserAgent,
	}
}

// run pumps frames until the connection drops or the server shuts down.
func (s *session) run(handler CommandHandler) {
	defer s.cancel()
	defer s.conn.Close()

	// Unblock the read loop when the server shuts down.
	go func() {
		<-s.ctx.Done()
		s.conn.Close()
	}()
	go s.pumpPing()

	for {
		var frame inboundFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !isExpectedClose(err) {
				log.Printf("[Gateway] read error for %s: %v", s.envelope.Client.InstanceID, err)
			}
			return
		}

		switch {
		case frame.Command != "":
			s.handleInvocation(handler, protocol.Invocation{
				ID:      frame.ID,
				Command: frame.Command,
				Params:  frame.Params,
			})
		default:
			s.deliverResult(protocol.Result{
				ID:      frame.ID,
				OK:      frame.OK,
				Payload: frame.Payload,
				Error:   frame.Error,
			})
		}
	}
}

// inboundFrame is the union of the two frame shapes a connection may send:
// an invocation (Command set) or a result answering a dispatched command.
type inboundFrame struct {
	ID      string                `json:"id"`
	Command protocol.Command      `json:"command,omitempty"`
	Params  json.RawMessage       `json:"params,omitempty"`
	OK      bool                  `json:"ok,omitempty"`
	Payload json.RawMessage       `json:"payload,omitempty"`
	Error   *protocol.InvokeError `json:"error,omitempty"`
}

// handleInvocation gates and executes one inbound invocation. Denials
// answer the single request; the connection stays up.
func (s *session) handleInvocation(handler CommandHandler, inv protocol.Invocation) {
	if err := gate.Authorize(s.gateConn, inv.Command); err != nil {
		code := protocol.ErrCodeNotAuthorized
		if gate.IsUnknownCommand(err) {
			code = protocol.ErrCodeUnknownCommand
		}
		log.Printf("[Gateway] denied %s for %s: %v", inv.Command, s.envelope.Client.InstanceID, err)
		s.respondError(inv.ID, code, err.Error())
		return
	}

	if handler == nil {
		s.respondError(inv.ID, protocol.ErrCodeInternal, "no command handler configured")
		return
	}

	payload, err := handler.Handle(s.ctx, s.gateConn, inv)
	if err != nil {
		s.respondError(inv.ID, protocol.ErrCodeInternal, err.Error())
		return
	}
	if err := s.writeJSON(protocol.Result{ID: inv.ID, OK: true, Payload: payload}); err != nil {
		log.Printf("[Gateway] write result for %s: %v", s.envelope.Client.InstanceID, err)
	}
}

// invoke sends a command over this session and waits for the matching
// result. Used by Server.Dispatch after the gate has approved the command.
func (s *session) invoke(ctx context.Context, cmd protocol.Command, params json.RawMessage) (protocol.Result, error) {
	inv := protocol.Invocation{ID: uuid.NewString(), Command: cmd, Params: params}

	ch := make(chan protocol.Result, 1)
	s.pendingMu.Lock()
	s.pending[inv.ID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, inv.ID)
		s.pendingMu.Unlock()
	}()

	if err := s.writeJSON(inv); err != nil {
		return protocol.Result{}, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return protocol.Result{}, fmt.Errorf("gateway: dispatch %s: %w", cmd, ctx.Err())
	case <-s.ctx.Done():
		return protocol.Result{}, fmt.Errorf("gateway: dispatch %s: connection closed", cmd)
	}
}

func (s *session) deliverResult(res protocol.Result) {
	s.pendingMu.Lock()
	ch, ok := s.pending[res.ID]
	s.pendingMu.Unlock()
	if !ok {
		log.Printf("[Gateway] unmatched result %q from %s", res.ID, s.envelope.Client.InstanceID)
		return
	}
	ch <- res
}

func (s *session) respondError(id, code, message string) {
	res := protocol.Result{ID: id, Error: &protocol.InvokeError{Code: code, Message: message}}
	if err := s.writeJSON(res); err != nil {
		log.Printf("[Gateway] write error result for %s: %v", s.envelope.Client.InstanceID, err)
	}
}

func (s *session) rejectAndClose(reason string) {
	writeReject(s.conn, reason)
	s.cancel()
	s.conn.Close()
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("gateway: write frame: %w", err)
	}
	return nil
}

// pumpPing keeps the connection alive through NAT gateways that drop idle
// connections on mobile networks.
func (s *session) pumpPing() {
	ticker := time.NewTicker(constants.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.WSPingTimeout))
			s.writeMu.Unlock()
			if err != nil {
				if !isExpectedClose(err) {
					log.Printf("[Gateway] ping failed for %s: %v", s.envelope.Client.InstanceID, err)
				}
				s.cancel()
				return
			}
		}
	}
}

func writeReject(conn *websocket.Conn, reason string) {
	res := protocol.Result{
		ID:    connectResultID,
		Error: &protocol.InvokeError{Code: protocol.ErrCodeNotAuthorized, Message: reason},
	}
	_ = conn.WriteJSON(res)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "handshake rejected"),
		time.Now().Add(time.Second))
}

// isExpectedClose returns true for errors that occur during normal
// WebSocket disconnection (client closed, server shutdown, etc.).
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

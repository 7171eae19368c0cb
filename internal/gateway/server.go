// Package gateway implements the hub side of the node protocol: it accepts
// WebSocket connections, validates the connect envelope, and enforces the
// command gate on every invocation for the lifetime of the session.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/gate"
	"github.com/theiaos/nodelink/internal/handshake"
	"github.com/theiaos/nodelink/internal/protocol"
)

// CommandHandler executes an authorized invocation arriving over a
// connection. Authorization has already happened by the time Handle runs.
type CommandHandler interface {
	Handle(ctx context.Context, conn gate.Conn, inv protocol.Invocation) (json.RawMessage, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, conn gate.Conn, inv protocol.Invocation) (json.RawMessage, error)

func (f CommandHandlerFunc) Handle(ctx context.Context, conn gate.Conn, inv protocol.Invocation) (json.RawMessage, error) {
	return f(ctx, conn, inv)
}

// NodeInfo summarises one registered node connection.
type NodeInfo struct {
	InstanceID  string                `json:"instanceId"`
	DisplayName string                `json:"displayName,omitempty"`
	Platform    string                `json:"platform"`
	Version     string                `json:"version"`
	Class       device.Class          `json:"class"`
	Caps        []protocol.Capability `json:"caps"`
	Commands    []protocol.Command    `json:"commands"`
	UserAgent   string                `json:"userAgent"`
}

// Server owns every live session. It is safe for concurrent use; the
// registry is guarded by mu and each session serializes its own writes.
type Server struct {
	handler CommandHandler

	upgrader websocket.Upgrader

	shutdownCtx context.Context
	shutdown    context.CancelFunc

	mu    sync.RWMutex
	nodes map[string]*session // by instance id, node role only
}

// New constructs a Server dispatching authorized invocations to handler.
func New(handler CommandHandler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			// Origin enforcement is the responsibility of the outer
			// HTTP layer; node clients send no browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		shutdownCtx: ctx,
		shutdown:    cancel,
		nodes:       make(map[string]*session),
	}
}

// Handler returns the HTTP handler exposing the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Close terminates every live session.
func (s *Server) Close() {
	s.shutdown()
}

// Nodes lists the currently registered node connections.
func (s *Server) Nodes() []NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NodeInfo, 0, len(s.nodes))
	for _, sess := range s.nodes {
		out = append(out, sess.info())
	}
	return out
}

// Dispatch sends a command to a registered node and waits for its result.
// The gate is consulted before anything is written: a node is never asked
// to serve a command its role and platform class do not permit, no matter
// what its handshake advertised.
func (s *Server) Dispatch(ctx context.Context, instanceID string, cmd protocol.Command, params json.RawMessage) (protocol.Result, error) {
	s.mu.RLock()
	sess, ok := s.nodes[instanceID]
	s.mu.RUnlock()
	if !ok {
		return protocol.Result{}, fmt.Errorf("gateway: node %s not connected", instanceID)
	}
	if err := gate.Authorize(sess.gateConn, cmd); err != nil {
		return protocol.Result{}, fmt.Errorf("gateway: dispatch %s to %s: %w", cmd, instanceID, err)
	}
	return sess.invoke(ctx, cmd, params)
}

func (s *Server) register(sess *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sess.envelope.Client.InstanceID
	if _, exists := s.nodes[id]; exists {
		return fmt.Errorf("gateway: instance %s already connected", id)
	}
	s.nodes[id] = sess
	return nil
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sess.envelope.Client.InstanceID
	if s.nodes[id] == sess {
		delete(s.nodes, id)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] upgrade failed: %v", err)
		return
	}

	sess, err := acceptSession(s.shutdownCtx, conn)
	if err != nil {
		log.Printf("[Gateway] handshake rejected from %s: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}

	if sess.gateConn.Role == protocol.RoleNode {
		if err := s.register(sess); err != nil {
			sess.rejectAndClose(err.Error())
			return
		}
		defer s.unregister(sess)
	}
	if err := sess.ackConnect(); err != nil {
		log.Printf("[Gateway] connect ack to %s: %v", r.RemoteAddr, err)
		sess.cancel()
		sess.conn.Close()
		return
	}

	log.Printf("[Gateway] %s connected: instance=%s agent=%q",
		sess.gateConn.Role, sess.envelope.Client.InstanceID, sess.envelope.UserAgent)
	sess.run(s.handler)
	log.Printf("[Gateway] %s disconnected: instance=%s",
		sess.gateConn.Role, sess.envelope.Client.InstanceID)
}

// classify derives the platform class the gateway attributes to a client.
// The claim comes from the envelope, but the resulting class is then held
// against the advertised catalog (gate.VerifyAdvertised), so a device
// platform cannot widen its authority by advertising host commands.
func classify(platform string) device.Class {
	switch platform {
	case "macos", "linux", "windows":
		return device.ClassHost
	default:
		return device.ClassDevice
	}
}

// validateEnvelope applies the structural handshake rules before any
// command flows: roles must be known, nodes carry no scopes, operators
// carry no device catalogs and only recognized scopes.
func validateEnvelope(opts handshake.ConnectOptions) error {
	if !opts.Role.Valid() {
		return fmt.Errorf("gateway: unknown role %q", opts.Role)
	}
	if opts.Client.InstanceID == "" {
		return fmt.Errorf("gateway: missing client instance id")
	}
	switch opts.Role {
	case protocol.RoleNode:
		if len(opts.Scopes) != 0 {
			return fmt.Errorf("gateway: node envelope carries scopes")
		}
	case protocol.RoleOperator:
		if len(opts.Caps) != 0 || len(opts.Commands) != 0 {
			return fmt.Errorf("gateway: operator envelope advertises device catalogs")
		}
		allowed := make(map[string]bool)
		for _, scope := range protocol.OperatorScopes() {
			allowed[scope] = true
		}
		for _, scope := range opts.Scopes {
			if !allowed[scope] {
				return fmt.Errorf("gateway: unknown scope %q", scope)
			}
		}
	}
	return nil
}

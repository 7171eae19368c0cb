// Package gate is the gateway-side authority on command invocation. The
// catalog a client advertised at handshake is a declaration of availability;
// this gate re-checks role, scope and platform class on every single
// invocation so a lying or compromised client cannot self-grant anything.
package gate

import (
	"errors"
	"fmt"

	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/protocol"
)

// Conn holds what the gateway established about a connection at handshake
// time. Class is the platform class the gateway attributes to the node, not
// whatever the client claims per-request.
type Conn struct {
	Role   protocol.Role
	Scopes []string
	Class  device.Class
}

// NotAuthorizedError denies one invocation. It is never fatal to the
// connection.
type NotAuthorizedError struct {
	Command protocol.Command
	Role    protocol.Role
	Reason  string
}

func (e NotAuthorizedError) Error() string {
	return fmt.Sprintf("gate: %s not authorized for role %s: %s", e.Command, e.Role, e.Reason)
}

// IsNotAuthorized reports whether err is (or wraps) a NotAuthorizedError.
func IsNotAuthorized(err error) bool {
	var target NotAuthorizedError
	return errors.As(err, &target)
}

// UnknownCommandError denies an invocation whose command is not part of the
// static vocabulary. Default-deny: commands missing from the protocol table
// do not exist.
type UnknownCommandError struct {
	Command protocol.Command
}

func (e UnknownCommandError) Error() string {
	return fmt.Sprintf("gate: unknown command %s", e.Command)
}

// IsUnknownCommand reports whether err is (or wraps) an UnknownCommandError.
func IsUnknownCommand(err error) bool {
	var target UnknownCommandError
	return errors.As(err, &target)
}

// Authorize checks a single inbound invocation against the static
// requirement table. It must be called for every invocation, independent of
// the handshake catalog.
func Authorize(c Conn, cmd protocol.Command) error {
	req, ok := protocol.Lookup(cmd)
	if !ok {
		return UnknownCommandError{Command: cmd}
	}
	if req.Role != c.Role {
		return NotAuthorizedError{Command: cmd, Role: c.Role, Reason: fmt.Sprintf("requires role %s", req.Role)}
	}
	if req.HostOnly && c.Class != device.ClassHost {
		return NotAuthorizedError{Command: cmd, Role: c.Role, Reason: "restricted to host-class nodes"}
	}
	if req.Scope != "" && !hasScope(c.Scopes, req.Scope) {
		return NotAuthorizedError{Command: cmd, Role: c.Role, Reason: fmt.Sprintf("requires scope %s", req.Scope)}
	}
	return nil
}

// VerifyAdvertised rejects handshake catalogs that claim commands the
// connection could never be granted. This catches a device-class node
// advertising host-exec commands before the connection is admitted at all.
func VerifyAdvertised(c Conn, commands []protocol.Command) error {
	for _, cmd := range commands {
		if err := Authorize(c, cmd); err != nil {
			return fmt.Errorf("gate: advertised catalog rejected: %w", err)
		}
	}
	return nil
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

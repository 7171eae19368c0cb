package protocol

import "encoding/json"

// Invocation is a single command request sent over an established gateway
// connection.
type Invocation struct {
	ID      string          `json:"id"`
	Command Command         `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Result answers one Invocation. Exactly one of Payload or Error is set.
type Result struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *InvokeError    `json:"error,omitempty"`
}

// InvokeError is the structured per-request error carried in a Result.
// A denied or unknown command fails only the request that carried it; the
// connection stays open.
type InvokeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for InvokeError.Code.
const (
	ErrCodeNotAuthorized  = "command_not_authorized"
	ErrCodeUnknownCommand = "unknown_command"
	ErrCodeInternal       = "internal_error"
)

// Package protocol defines the shared command, capability, role and scope
// vocabulary for gateway connections. Both the client-side catalog builder
// and the gateway-side command gate derive their behaviour from the tables
// in this package, so the two sides cannot drift.
package protocol

// Role identifies the purpose of a single gateway connection. A connection
// keeps its role for its whole lifetime; devices reconnect rather than
// switch roles.
type Role string

const (
	// RoleNode is a device connection that advertises and serves
	// platform capabilities.
	RoleNode Role = "node"
	// RoleOperator is a control-surface connection with elevated scopes
	// and no device capabilities.
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role token.
func (r Role) Valid() bool {
	return r == RoleNode || r == RoleOperator
}

// Scope tokens granted to operator connections.
const (
	ScopeOperatorRead        = "operator.read"
	ScopeOperatorWrite       = "operator.write"
	ScopeOperatorTalkSecrets = "operator.talk.secrets"
)

// OperatorScopes returns the fixed scope set for operator connections.
func OperatorScopes() []string {
	return []string{ScopeOperatorRead, ScopeOperatorWrite, ScopeOperatorTalkSecrets}
}

// Capability tokens advertised in the connect envelope.
type Capability string

const (
	CapCanvas    Capability = "canvas"
	CapCamera    Capability = "camera"
	CapScreen    Capability = "screen"
	CapVoiceWake Capability = "voiceWake"
	CapLocation  Capability = "location"
	CapSMS       Capability = "sms"
)

// Command tokens invocable over a gateway connection. The string values are
// wire-stable; renaming one is a protocol break for every client platform.
type Command string

const (
	CmdCanvasPresent   Command = "canvas.present"
	CmdCanvasHide      Command = "canvas.hide"
	CmdCanvasNavigate  Command = "canvas.navigate"
	CmdCanvasEval      Command = "canvas.eval"
	CmdCanvasSnapshot  Command = "canvas.snapshot"
	CmdA2UIPush        Command = "canvas.a2ui.push"
	CmdA2UIPushJSONL   Command = "canvas.a2ui.pushJSONL"
	CmdA2UIReset       Command = "canvas.a2ui.reset"
	CmdScreenRecord    Command = "screen.record"
	CmdCameraSnap      Command = "camera.snap"
	CmdCameraClip      Command = "camera.clip"
	CmdLocationGet     Command = "location.get"
	CmdSMSSend         Command = "sms.send"
	CmdDeviceStatus    Command = "device.status"
	CmdDeviceInfo      Command = "device.info"
	CmdSystemNotify    Command = "system.notify"
	CmdSystemRun       Command = "system.run"
	CmdSystemWhich     Command = "system.which"
	CmdExecApprovalGet Command = "system.execApprovals.get"
	CmdExecApprovalSet Command = "system.execApprovals.set"
	CmdTalkPTTStart    Command = "talk.ptt.start"
	CmdTalkPTTStop     Command = "talk.ptt.stop"
	CmdTalkPTTCancel   Command = "talk.ptt.cancel"
	CmdDebugLogs       Command = "debug.logs"
	CmdDebugEd25519    Command = "debug.ed25519"
	CmdAppUpdate       Command = "app.update"
)

// Requirement describes what a connection must hold before the gateway lets
// it invoke a command. The zero Scope means no scope is needed beyond the
// role itself.
type Requirement struct {
	// Role that may invoke the command.
	Role Role
	// Scope required in addition to the role, if any.
	Scope string
	// HostOnly commands are served exclusively by host-class (desktop)
	// nodes. Device-class nodes must neither advertise nor be granted
	// them.
	HostOnly bool
	// DebugOnly commands exist only in debug builds.
	DebugOnly bool
	// Capability the command belongs to. Empty for commands that need no
	// capability advertisement (device status, app update, debug).
	Capability Capability
}

// requirements is the authoritative command table. The catalog builder
// filters it for what a device may advertise; the gate consults it for
// every inbound invocation. Commands absent from this table do not exist:
// the gate denies them as unknown.
var requirements = map[Command]Requirement{
	CmdCanvasPresent:  {Role: RoleNode, Capability: CapCanvas},
	CmdCanvasHide:     {Role: RoleNode, Capability: CapCanvas},
	CmdCanvasNavigate: {Role: RoleNode, Capability: CapCanvas},
	CmdCanvasEval:     {Role: RoleNode, Capability: CapCanvas},
	CmdCanvasSnapshot: {Role: RoleNode, Capability: CapCanvas},
	CmdA2UIPush:       {Role: RoleNode, Capability: CapCanvas},
	CmdA2UIPushJSONL:  {Role: RoleNode, Capability: CapCanvas},
	CmdA2UIReset:      {Role: RoleNode, Capability: CapCanvas},
	CmdScreenRecord:   {Role: RoleNode, Capability: CapScreen},

	CmdCameraSnap:  {Role: RoleNode, Capability: CapCamera},
	CmdCameraClip:  {Role: RoleNode, Capability: CapCamera},
	CmdLocationGet: {Role: RoleNode, Capability: CapLocation},
	CmdSMSSend:     {Role: RoleNode, Capability: CapSMS},

	CmdDeviceStatus: {Role: RoleNode},
	CmdDeviceInfo:   {Role: RoleNode},
	CmdSystemNotify: {Role: RoleNode},

	CmdSystemRun:       {Role: RoleNode, HostOnly: true},
	CmdSystemWhich:     {Role: RoleNode, HostOnly: true},
	CmdExecApprovalGet: {Role: RoleNode, HostOnly: true},
	CmdExecApprovalSet: {Role: RoleNode, HostOnly: true},

	CmdTalkPTTStart:  {Role: RoleOperator, Scope: ScopeOperatorTalkSecrets},
	CmdTalkPTTStop:   {Role: RoleOperator, Scope: ScopeOperatorTalkSecrets},
	CmdTalkPTTCancel: {Role: RoleOperator, Scope: ScopeOperatorTalkSecrets},

	CmdDebugLogs:    {Role: RoleNode, DebugOnly: true},
	CmdDebugEd25519: {Role: RoleNode, DebugOnly: true},

	CmdAppUpdate: {Role: RoleNode},
}

// Lookup returns the requirement for cmd, or ok == false when the command
// is not part of the vocabulary.
func Lookup(cmd Command) (Requirement, bool) {
	req, ok := requirements[cmd]
	return req, ok
}

// HostOnly reports whether cmd is restricted to host-class nodes.
func HostOnly(cmd Command) bool {
	req, ok := requirements[cmd]
	return ok && req.HostOnly
}

// HostOnlyCommands returns every command restricted to host-class nodes.
// Order is unspecified.
func HostOnlyCommands() []Command {
	var out []Command
	for cmd, req := range requirements {
		if req.HostOnly {
			out = append(out, cmd)
		}
	}
	return out
}

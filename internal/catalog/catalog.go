// Package catalog computes what a connecting client advertises: the
// capability set and the invocable command set. Both are pure functions of
// the feature snapshot, role and build configuration, and both are derived
// from the protocol requirement table so the advertised capabilities and
// commands cannot drift apart.
package catalog

import (
	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/protocol"
)

// Commands returns the ordered command set a client with the given feature
// snapshot may advertise. Operator connections advertise no commands.
// Host-exec commands are omitted entirely on device-class platforms, and
// debug commands exist only in debug builds.
func Commands(features device.FeatureState, role protocol.Role, debugBuild bool) []protocol.Command {
	if role != protocol.RoleNode {
		return nil
	}

	cmds := nodeCommands(features)
	if debugBuild {
		cmds = append(cmds, protocol.CmdDebugLogs, protocol.CmdDebugEd25519)
	}
	// app.update is always last, unconditionally.
	return append(cmds, protocol.CmdAppUpdate)
}

// Capabilities returns the ordered capability set for the snapshot. Every
// capability except voiceWake corresponds to at least one advertised
// command; voiceWake is exercised locally by the wake listener, and is only
// advertised when the wake mode is on and the microphone permission is
// currently granted. A capability that cannot be exercised right now must
// not be advertised.
func Capabilities(features device.FeatureState, role protocol.Role) []protocol.Capability {
	if role != protocol.RoleNode {
		return nil
	}

	var caps []protocol.Capability
	seen := make(map[protocol.Capability]bool)
	for _, cmd := range nodeCommands(features) {
		req, ok := protocol.Lookup(cmd)
		if !ok || req.Capability == "" || seen[req.Capability] {
			continue
		}
		seen[req.Capability] = true
		caps = append(caps, req.Capability)
	}

	if features.VoiceWakeMode != device.VoiceWakeOff && features.MicPermissionGranted {
		caps = append(caps, protocol.CapVoiceWake)
	}
	return caps
}

// nodeCommands is the shared base list for both catalogs: everything a node
// with this snapshot serves, before build-dependent additions.
func nodeCommands(features device.FeatureState) []protocol.Command {
	cmds := []protocol.Command{
		protocol.CmdCanvasPresent,
		protocol.CmdCanvasHide,
		protocol.CmdCanvasNavigate,
		protocol.CmdCanvasEval,
		protocol.CmdCanvasSnapshot,
		protocol.CmdA2UIPush,
		protocol.CmdA2UIPushJSONL,
		protocol.CmdA2UIReset,
		protocol.CmdScreenRecord,
	}
	if features.CameraEnabled {
		cmds = append(cmds, protocol.CmdCameraSnap, protocol.CmdCameraClip)
	}
	if features.LocationMode != device.LocationOff {
		cmds = append(cmds, protocol.CmdLocationGet)
	}
	if features.SMSAvailable {
		cmds = append(cmds, protocol.CmdSMSSend)
	}
	cmds = append(cmds,
		protocol.CmdDeviceStatus,
		protocol.CmdDeviceInfo,
		protocol.CmdSystemNotify,
	)
	if features.Class == device.ClassHost {
		cmds = append(cmds,
			protocol.CmdSystemRun,
			protocol.CmdSystemWhich,
			protocol.CmdExecApprovalGet,
			protocol.CmdExecApprovalSet,
		)
	}
	return cmds
}

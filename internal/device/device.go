// Package device describes the per-connection feature snapshot and build
// metadata a platform adapter supplies to the catalog and envelope
// builders. Snapshots are recomputed on every connection attempt because
// feature toggles can change between sessions, so nothing here is cached.
package device

// Class separates device-class nodes (phones, tablets) from host-class
// nodes (desktops). Host-exec commands exist only for host-class nodes.
type Class string

const (
	ClassDevice Class = "device"
	ClassHost   Class = "host"
)

// LocationMode mirrors the platform location toggle.
type LocationMode string

const (
	LocationOff        LocationMode = "off"
	LocationWhileUsing LocationMode = "whileUsing"
	LocationAlways     LocationMode = "always"
)

// VoiceWakeMode mirrors the platform voice-wake toggle.
type VoiceWakeMode string

const (
	VoiceWakeOff     VoiceWakeMode = "off"
	VoiceWakeEnabled VoiceWakeMode = "enabled"
)

// FeatureState is a point-in-time snapshot of the device toggles that gate
// capability advertisement. Values are read fresh at connect time and
// discarded with the attempt.
type FeatureState struct {
	Class                Class
	CameraEnabled        bool
	LocationMode         LocationMode
	VoiceWakeMode        VoiceWakeMode
	MicPermissionGranted bool
	SMSAvailable         bool
}

// Snapshotter produces a fresh FeatureState. Implementations query the
// platform (permission managers, settings) and must be cheap enough to call
// on every connection attempt.
type Snapshotter interface {
	Snapshot() FeatureState
}

// SnapshotterFunc adapts a function to the Snapshotter interface.
type SnapshotterFunc func() FeatureState

func (f SnapshotterFunc) Snapshot() FeatureState { return f() }

// BuildInfo carries the build metadata baked into a client binary.
type BuildInfo struct {
	Version   string
	Debug     bool
	Platform  string // "android", "ios", "macos", "linux", ...
	OSVersion string
	Model     string // manufacturer/model descriptor, may be empty
}

// BuildInfoProvider supplies BuildInfo to the envelope builder.
type BuildInfoProvider interface {
	BuildInfo() BuildInfo
}

// Package handshake assembles the connect envelope a client sends as the
// first frame of a gateway connection. The envelope declares role, scopes
// and the advertised catalogs; it is a declaration of intent, not a grant,
// and the gateway re-authorizes every subsequent invocation independently.
package handshake

import (
	"fmt"
	"strings"

	"github.com/theiaos/nodelink/internal/catalog"
	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/protocol"
	"github.com/theiaos/nodelink/internal/version"
)

// Client IDs and modes as they appear in gateway logs.
const (
	nodeClientID       = "theiaos-node"
	nodeClientMode     = "node"
	operatorClientID   = "theiaos-control-ui"
	operatorClientMode = "ui"
)

// ClientInfo carries the stable identity of the connecting installation.
type ClientInfo struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName,omitempty"`
	Version         string `json:"version"`
	Platform        string `json:"platform"`
	Mode            string `json:"mode"`
	InstanceID      string `json:"instanceId"`
	DeviceFamily    string `json:"deviceFamily,omitempty"`
	ModelIdentifier string `json:"modelIdentifier,omitempty"`
}

// ConnectOptions is the handshake envelope. TLS trust is established by the
// transport before this is ever sent; the envelope carries no trust
// material.
type ConnectOptions struct {
	Role      protocol.Role         `json:"role"`
	Scopes    []string              `json:"scopes"`
	Caps      []protocol.Capability `json:"caps"`
	Commands  []protocol.Command    `json:"commands"`
	Client    ClientInfo            `json:"client"`
	UserAgent string                `json:"userAgent"`
}

// Identity is the persisted installation identity supplied by the caller
// (see pinstore.Identity).
type Identity struct {
	InstanceID  string
	DisplayName string
}

// Node builds the envelope for a device connection: capabilities and
// commands from a fresh feature snapshot, zero scopes.
func Node(features device.FeatureState, build device.BuildInfo, id Identity) ConnectOptions {
	return ConnectOptions{
		Role:      protocol.RoleNode,
		Scopes:    []string{},
		Caps:      catalog.Capabilities(features, protocol.RoleNode),
		Commands:  catalog.Commands(features, protocol.RoleNode, build.Debug),
		Client:    clientInfo(nodeClientID, nodeClientMode, build, id),
		UserAgent: UserAgent(build),
	}
}

// Operator builds the envelope for a control-surface connection: the fixed
// elevated scopes, zero device capabilities.
func Operator(build device.BuildInfo, id Identity) ConnectOptions {
	return ConnectOptions{
		Role:      protocol.RoleOperator,
		Scopes:    protocol.OperatorScopes(),
		Caps:      []protocol.Capability{},
		Commands:  []protocol.Command{},
		Client:    clientInfo(operatorClientID, operatorClientMode, build, id),
		UserAgent: UserAgent(build),
	}
}

// UserAgent renders the transport user agent from build metadata, e.g.
// "TheiaOSNode/1.4.0 (android 14; Pixel 8)".
func UserAgent(build device.BuildInfo) string {
	v := version.WithDebugMarker(build.Version, build.Debug)
	osVersion := strings.TrimSpace(build.OSVersion)
	if osVersion == "" {
		osVersion = "unknown"
	}
	detail := fmt.Sprintf("%s %s", build.Platform, osVersion)
	if model := strings.TrimSpace(build.Model); model != "" {
		detail += "; " + model
	}
	return fmt.Sprintf("TheiaOSNode/%s (%s)", v, detail)
}

func clientInfo(clientID, mode string, build device.BuildInfo, id Identity) ClientInfo {
	return ClientInfo{
		ID:              clientID,
		DisplayName:     id.DisplayName,
		Version:         version.WithDebugMarker(build.Version, build.Debug),
		Platform:        build.Platform,
		Mode:            mode,
		InstanceID:      id.InstanceID,
		DeviceFamily:    deviceFamily(build.Platform),
		ModelIdentifier: strings.TrimSpace(build.Model),
	}
}

func deviceFamily(platform string) string {
	switch platform {
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	case "macos":
		return "macOS"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	default:
		return platform
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/pinstore"
	nlversion "github.com/theiaos/nodelink/internal/version"
)

// Shared helpers used across command files.

// openStore opens the sqlite pin store under the configured data directory,
// creating the directory on first use.
func openStore(cmd *cobra.Command) (*pinstore.SQLStore, error) {
	dir, _ := cmd.Flags().GetString("data-dir")
	if dir == "" {
		dir = dataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return pinstore.Open(pinstore.Options{DBPath: filepath.Join(dir, "pins.db")})
}

// platformName maps the Go runtime OS identifier to the platform name
// clients advertise in the connect envelope.
func platformName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	default:
		return runtime.GOOS
	}
}

// localBuildInfo describes this binary for envelope and catalog purposes.
func localBuildInfo(debug bool) device.BuildInfo {
	return device.BuildInfo{
		Version:  nlversion.String(),
		Debug:    debug,
		Platform: platformName(),
	}
}

// registerFeatureFlags adds the device feature toggles shared by the
// commands that compute capability catalogs.
func registerFeatureFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("camera", false, "Advertise camera capability")
	cmd.Flags().String("location", "off", "Location mode (off|whileUsing|always)")
	cmd.Flags().String("voice-wake", "off", "Voice wake mode (off|enabled)")
	cmd.Flags().Bool("mic", false, "Microphone permission granted")
	cmd.Flags().Bool("sms", false, "Advertise SMS capability")
}

// featuresFromFlags builds the feature snapshot for the given platform class
// from the registered feature flags.
func featuresFromFlags(cmd *cobra.Command, class device.Class) (device.FeatureState, error) {
	flags := cmd.Flags()
	camera, _ := flags.GetBool("camera")
	locationRaw, _ := flags.GetString("location")
	voiceWakeRaw, _ := flags.GetString("voice-wake")
	mic, _ := flags.GetBool("mic")
	sms, _ := flags.GetBool("sms")

	var location device.LocationMode
	switch device.LocationMode(locationRaw) {
	case device.LocationOff, device.LocationWhileUsing, device.LocationAlways:
		location = device.LocationMode(locationRaw)
	default:
		return device.FeatureState{}, fmt.Errorf("invalid location mode %q", locationRaw)
	}

	var voiceWake device.VoiceWakeMode
	switch device.VoiceWakeMode(voiceWakeRaw) {
	case device.VoiceWakeOff, device.VoiceWakeEnabled:
		voiceWake = device.VoiceWakeMode(voiceWakeRaw)
	default:
		return device.FeatureState{}, fmt.Errorf("invalid voice wake mode %q", voiceWakeRaw)
	}

	return device.FeatureState{
		Class:                class,
		CameraEnabled:        camera,
		LocationMode:         location,
		VoiceWakeMode:        voiceWake,
		MicPermissionGranted: mic,
		SMSAvailable:         sms,
	}, nil
}

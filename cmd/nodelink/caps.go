package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theiaos/nodelink/internal/catalog"
	"github.com/theiaos/nodelink/internal/device"
	"github.com/theiaos/nodelink/internal/protocol"
)

func newCapsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "caps",
		Short:         "Show the capability and command catalog for a feature snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCaps,
	}
	cmd.Flags().String("class", "", "Platform class (device|host), defaults to this machine")
	cmd.Flags().Bool("operator", false, "Compute the catalog for the operator role")
	cmd.Flags().Bool("debug", false, "Include debug build commands")
	registerFeatureFlags(cmd)
	return cmd
}

func runCaps(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	flags := cmd.Flags()

	class := device.ClassHost
	switch classRaw, _ := flags.GetString("class"); classRaw {
	case "":
		// CLI hosts are host class unless overridden.
	case string(device.ClassDevice):
		class = device.ClassDevice
	case string(device.ClassHost):
		class = device.ClassHost
	default:
		return out.Error("Invalid class", fmt.Errorf("unknown class %q", classRaw))
	}

	features, err := featuresFromFlags(cmd, class)
	if err != nil {
		return out.Error("Invalid feature flags", err)
	}

	role := protocol.RoleNode
	if operator, _ := flags.GetBool("operator"); operator {
		role = protocol.RoleOperator
	}
	debug, _ := flags.GetBool("debug")

	caps := catalog.Capabilities(features, role)
	commands := catalog.Commands(features, role, debug)

	if out.jsonMode {
		return out.Print(map[string]interface{}{
			"role":     role,
			"class":    class,
			"caps":     caps,
			"commands": commands,
		})
	}

	fmt.Printf("Role: %s  Class: %s\n", role, class)
	fmt.Println("Capabilities:")
	if len(caps) == 0 {
		fmt.Println("  (none)")
	}
	for _, capability := range caps {
		fmt.Printf("  %s\n", capability)
	}
	fmt.Println("Commands:")
	if len(commands) == 0 {
		fmt.Println("  (none)")
	}
	for _, command := range commands {
		fmt.Printf("  %s\n", command)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	nlversion "github.com/theiaos/nodelink/internal/version"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the client version",
		RunE:  runVersion,
	}
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := nlversion.String()

	if out.jsonMode {
		return out.Print(map[string]any{
			"client":   clientVersion,
			"envelope": nlversion.WithDebugMarker(clientVersion, false),
		})
	}

	fmt.Printf("Client: %s\n", nlversion.FormatVersion(clientVersion))
	return nil
}

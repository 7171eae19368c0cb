package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newPinsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pins",
		Short:         "Manage stored TLS certificate pins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	listCmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored pins",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPinsList,
	}

	rmCmd := &cobra.Command{
		Use:           "rm <stable-id>",
		Short:         "Remove a stored pin",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPinsRemove,
	}

	cmd.AddCommand(listCmd, rmCmd)
	return cmd
}

func runPinsList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	store, err := openStore(cmd)
	if err != nil {
		return out.Error("Failed to open pin store", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pins, err := store.ListPins(ctx)
	if err != nil {
		return out.Error("Failed to list pins", err)
	}

	if out.jsonMode {
		entries := make([]map[string]interface{}, 0, len(pins))
		for _, pin := range pins {
			entries = append(entries, map[string]interface{}{
				"stable_id":   pin.StableID,
				"fingerprint": pin.Fingerprint,
				"created_at":  pin.CreatedAt.Format(time.RFC3339),
				"updated_at":  pin.UpdatedAt.Format(time.RFC3339),
			})
		}
		return out.Print(map[string]interface{}{"pins": entries})
	}

	if len(pins) == 0 {
		fmt.Println("No stored pins")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STABLE ID\tFINGERPRINT\tUPDATED")
	for _, pin := range pins {
		fmt.Fprintf(w, "%s\t%s\t%s\n", pin.StableID, pin.Fingerprint, pin.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runPinsRemove(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	stableID := args[0]

	store, err := openStore(cmd)
	if err != nil {
		return out.Error("Failed to open pin store", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.DeleteFingerprint(ctx, stableID); err != nil {
		return out.Error("Failed to remove pin", err)
	}
	return out.Success(fmt.Sprintf("Pin for %s removed", stableID), map[string]interface{}{
		"stable_id": stableID,
	})
}

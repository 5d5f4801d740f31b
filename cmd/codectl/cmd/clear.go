package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every message in the store",
	Long: `Deletes every message held by the store. Terminals keep their place;
message ids are not reused. There is no undo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear %s without --yes", cfg.Store.URL)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := storeClient().Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out(cmd), "store cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("yes", false, "confirm the clear")
}

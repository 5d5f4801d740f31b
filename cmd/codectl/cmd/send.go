package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sendCmd = &cobra.Command{
	Use:   "send <code>",
	Short: "Append a code to the message store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := strings.Join(args, " ")
		node, _ := cmd.Flags().GetString("node")
		if node == "" {
			node = "codectl-" + uuid.NewString()[:8]
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		logger.Info("sending code", zap.String("store", cfg.Store.URL), zap.String("node", node))
		id, err := storeClient().Append(ctx, code, time.Now().Unix(), node)
		if err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "sent %q as message %d\n", strings.TrimSpace(code), id)
		return nil
	},
}

func init() {
	sendCmd.Flags().String("node", "", "sender node id (default: random)")
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/balaji-balu/codeboard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Dump(cfg)
		if err != nil {
			return err
		}
		_, err = out(cmd).Write(data)
		return err
	},
}

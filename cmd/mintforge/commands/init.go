package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"mintforge/internal/config"
)

func initCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(out); err != nil {
				return err
			}
			fmt.Printf("wrote example configuration to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "config.example.json", "output path")
	return cmd
}

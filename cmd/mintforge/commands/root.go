package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mintforge/internal/config"
)

var (
	configPath  string
	flagNetwork string
	flagAmount  int64
	flagGroup   int64
	flagTo      string
	flagDryRun  bool
	flagVerbose bool
	flagMetrics string

	logger *slog.Logger
)

// RunFailedError marks a run that reached the Failed terminal state. The
// process exits nonzero on it.
type RunFailedError struct {
	Err error
}

func (e *RunFailedError) Error() string { return e.Err.Error() }
func (e *RunFailedError) Unwrap() error { return e.Err }

// Execute runs the CLI and returns the terminal error, if any.
func Execute() error {
	root := &cobra.Command{
		Use:           "mintforge",
		Short:         "Automated NFT minting for EVM chains",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMint(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to configuration file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.Flags().StringVarP(&flagNetwork, "network", "n", "", "override network (e.g. ARBITRUM_ONE, BERACHAIN)")
	root.Flags().Int64VarP(&flagAmount, "amount", "a", 0, "override mint amount (-1 for max)")
	root.Flags().Int64VarP(&flagGroup, "group", "g", 0, "override group id")
	root.Flags().StringVar(&flagTo, "to-address", "", "override recipient address (default: your wallet)")
	root.Flags().BoolVar(&flagDryRun, "dry-run", false, "simulate minting without sending transactions")
	root.Flags().StringVar(&flagMetrics, "metrics-addr", "", "serve prometheus metrics on this address")

	root.AddCommand(networksCmd(), runsCmd(), initCmd())
	return root.Execute()
}

// applyOverrides validates flag overrides and writes them onto the loaded
// config.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	var issues []string

	if cmd.Flags().Changed("network") {
		cfg.Network.Name = flagNetwork
	}
	if cmd.Flags().Changed("amount") {
		if flagAmount != config.AmountAutoMax && flagAmount <= 0 {
			issues = append(issues, "amount must be -1 (for max) or greater than 0")
		} else {
			cfg.Minting.Amount = flagAmount
		}
	}
	if cmd.Flags().Changed("group") {
		if flagGroup < 0 {
			issues = append(issues, "group id must be non-negative")
		} else {
			cfg.Minting.GroupID = flagGroup
		}
	}
	if cmd.Flags().Changed("to-address") {
		if !config.ValidAddress(flagTo) {
			issues = append(issues, fmt.Sprintf("invalid recipient address: %s", flagTo))
		} else {
			cfg.Minting.ToAddress = flagTo
		}
	}
	if flagMetrics != "" {
		cfg.Metrics.ListenAddr = flagMetrics
	}

	if len(issues) > 0 {
		return &config.ValidationError{Issues: issues}
	}
	return nil
}

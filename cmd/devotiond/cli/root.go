// Package cli wires the devotiond commands.
package cli

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// NewRootCmd builds the devotiond command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "devotiond",
		Short:         "Devotion staking ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./configs/$APP_ENV.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newInitCmd(opts),
		newAuditCmd(opts),
		newMintCmd(opts),
		newFundCmd(opts),
		newPositionCmd(opts),
	)
	return cmd
}

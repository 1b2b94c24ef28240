package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Proton-105/devotion/internal/database"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := bootstrap(ctx, root, bootstrapOptions{database: true})
			if err != nil {
				return err
			}
			defer a.close()

			migrator := database.NewMigrator(a.db, a.log)
			var applied int
			if dir != "" {
				applied, err = migrator.ApplyDir(ctx, dir)
			} else {
				applied, err = migrator.Up(ctx)
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")
	return cmd
}

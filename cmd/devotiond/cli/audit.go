package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Proton-105/devotion/internal/jobs"
	"github.com/Proton-105/devotion/pkg/metrics"
)

var errInconsistent = errors.New("ledger is inconsistent")

func newAuditCmd(root *rootOptions) *cobra.Command {
	var (
		enqueue        bool
		failOnMismatch bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile the aggregate, the records and the vaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := bootstrap(ctx, root, bootstrapOptions{redis: enqueue})
			if err != nil {
				return err
			}
			defer a.close()

			if enqueue {
				manager := jobs.NewManager(a.asynqRedisOpt(), a.log)
				defer manager.Close()

				id, err := jobs.EnqueueLedgerAudit(ctx, manager, jobs.LedgerAuditPayload{
					RequestedBy:    "cli",
					FailOnMismatch: failOnMismatch,
				})
				if err != nil {
					return fmt.Errorf("enqueue audit: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "audit task %s enqueued\n", id)
				return err
			}

			report, err := a.engine.Audit(ctx)
			if err != nil {
				metrics.RecordAudit(nil)
				return err
			}
			metrics.RecordAudit(report)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}

			if failOnMismatch && !report.Consistent() {
				return errInconsistent
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the audit for the jobs worker instead of running it here")
	cmd.Flags().BoolVar(&failOnMismatch, "fail-on-mismatch", false, "exit non-zero when the ledger is inconsistent")
	return cmd
}

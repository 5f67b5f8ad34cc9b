package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var autoRepair bool

	cmd := &cobra.Command{
		Use:           "reconcile <project-id>",
		Short:         "Compare a project's ledger against its on-disk artifacts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := contracts.ReportOnly
			if autoRepair {
				mode = contracts.AutoRepair
			}
			return reconcileProject(cmd, rootOpts, args[0], mode)
		},
	}
	cmd.Flags().BoolVar(&autoRepair, "auto-repair", false, "repair ledger/disk disagreements instead of only reporting them")
	return cmd
}

func reconcileProject(cmd *cobra.Command, rootOpts *RootOptions, id string, mode contracts.ReconcileMode) error {
	ctx := context.Background()
	c, err := openCore(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer c.Close()

	projectID := contracts.ProjectID(id)
	report, err := c.ledger.Reconcile(ctx, projectID, mode)
	if err != nil {
		return WrapExitError(ExitStoreError, "reconciling ledger", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s mode=%s repaired=%v\n", projectID, mode, report.Repaired)
	fmt.Fprintf(cmd.OutOrStdout(), "orphans=%d missing=%d size_mismatch=%d\n", len(report.Orphans), len(report.Missing), len(report.SizeMismatch))
	for _, path := range report.Orphans {
		fmt.Fprintf(cmd.OutOrStdout(), "  orphan=%s\n", path)
	}
	for _, id := range report.Missing {
		fmt.Fprintf(cmd.OutOrStdout(), "  missing=%s\n", id)
	}
	for _, id := range report.SizeMismatch {
		fmt.Fprintf(cmd.OutOrStdout(), "  size_mismatch=%s\n", id)
	}

	if len(report.Orphans) > 0 || len(report.Missing) > 0 || len(report.SizeMismatch) > 0 {
		if !report.Repaired {
			return WrapExitError(ExitFailure, "ledger and disk disagree", contracts.ErrIntegrity)
		}
	}
	return nil
}

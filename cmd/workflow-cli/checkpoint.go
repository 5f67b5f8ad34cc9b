package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// NewCheckpointCommand creates the `checkpoint` command group (currently
// just `checkpoint verify`).
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect checkpoint state for a project",
	}
	cmd.AddCommand(newCheckpointVerifyCommand(rootOpts))
	return cmd
}

func newCheckpointVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "verify <project-id>",
		Short:         "Validate the latest checkpoint's checksum and reconcile its ledger",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyCheckpoint(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func verifyCheckpoint(cmd *cobra.Command, rootOpts *RootOptions, id string) error {
	ctx := context.Background()
	c, err := openCore(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer c.Close()

	projectID := contracts.ProjectID(id)
	report, err := c.cp.Verify(ctx, projectID)
	if err != nil {
		return WrapExitError(ExitStoreError, "verifying checkpoint", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s checksum_ok=%v repaired=%v\n", projectID, report.ChecksumOK, report.Reconcile.Repaired)
	for _, e := range report.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  error=%s\n", e)
	}

	if !report.ChecksumOK || len(report.Errors) > 0 {
		return WrapExitError(ExitFailure, "checkpoint integrity check failed", contracts.ErrIntegrity)
	}
	return nil
}

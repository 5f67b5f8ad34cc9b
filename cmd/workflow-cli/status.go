package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status <project-id>",
		Short:         "Print a project's status and per-stage statuses",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusProject(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func statusProject(cmd *cobra.Command, rootOpts *RootOptions, id string) error {
	ctx := context.Background()
	c, err := openCore(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer c.Close()

	projectID := contracts.ProjectID(id)
	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return WrapExitError(ExitStoreError, "fetching project", err)
	}
	stages, err := c.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return WrapExitError(ExitStoreError, "fetching stage records", err)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Ordinal < stages[j].Ordinal })

	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s name=%s status=%s\n", project.ID, project.Name, project.Status)
	for _, s := range stages {
		line := fmt.Sprintf("  stage=%s status=%s retries=%d", s.StageName, s.Status, s.RetryCount)
		if s.ErrorMessage != "" {
			line += fmt.Sprintf(" error=%q", s.ErrorMessage)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

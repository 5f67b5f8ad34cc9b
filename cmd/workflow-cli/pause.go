package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// NewPauseCommand creates the pause command.
//
// Pause only has an observable effect on a project whose Execute call is
// live in this same process — there is no cross-process signaling channel
// for a one-shot CLI invocation to reach a `run` started elsewhere. It is
// wired for interface completeness (every Engine exposes Pause); a
// standalone `workflow-cli pause` against an already-exited `run` is a no-op
// and reports that plainly rather than pretending to succeed.
func NewPauseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pause <project-id>",
		Short:         "Pause a project's execution if it is live in this process",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pauseProject(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func pauseProject(cmd *cobra.Command, rootOpts *RootOptions, id string) error {
	ctx := context.Background()
	c, err := openCore(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer c.Close()

	projectID := contracts.ProjectID(id)
	if _, err := c.store.GetProject(ctx, projectID); err != nil {
		return WrapExitError(ExitStoreError, "fetching project", err)
	}

	c.engine.Pause(projectID)
	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s pause_requested=true\n", projectID)
	fmt.Fprintln(cmd.OutOrStdout(), "note: has no effect unless this project's run is live in this process")
	return nil
}

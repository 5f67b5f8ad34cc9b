package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// NewResumeCommand creates the resume command.
//
// Unlike pause, resume is useful even as a standalone invocation: a project
// left `running` by a crashed or killed process has no live control to wake,
// so resume re-enters Execute, which the engine resumes idempotently from
// the last completed stage (§4.6 recovery path) rather than rerunning
// everything from scratch.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resume <project-id>",
		Short:         "Resume a project, re-entering execution from its last completed stage",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeProject(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func resumeProject(cmd *cobra.Command, rootOpts *RootOptions, id string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

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
	workflowName, err := workflowNameFromConfig(project)
	if err != nil {
		return WrapExitError(ExitMisconfigured, "recovering workflow name", err)
	}

	if _, err := c.registerWorkflows(rootOpts.WorkflowsDir); err != nil {
		return WrapExitError(ExitMisconfigured, "loading workflows", err)
	}

	result, err := c.engine.Execute(ctx, workflowName, projectID, nil, nil)
	if err != nil {
		return WrapExitError(ExitMisconfigured, "resuming execution", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s status=%s success_rate=%.2f\n", projectID, result.Status, result.SuccessRate)

	switch result.Status {
	case contracts.ProjectCompleted:
		return nil
	case contracts.ProjectCancelled:
		return WrapExitError(ExitCancelled, "execution cancelled", errors.New(result.FirstFatalError))
	default:
		return WrapExitError(ExitFailure, "execution failed", errors.New(result.FirstFatalError))
	}
}

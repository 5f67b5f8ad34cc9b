package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// RunOptions holds the flags for `workflow-cli run`.
type RunOptions struct {
	*RootOptions
	ProjectID       string
	Name            string
	Theme           string
	TargetLengthMin int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <workflow-name>",
		Short: "Create a project and drive a registered workflow to completion",
		Long: `run loads every JSON workflow definition under --workflows-dir, creates a
new project, and executes <workflow-name> to completion, printing each
stage's terminal status as it lands.

Example:
  workflow-cli run --db ./workflow.db render-short --theme space`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ProjectID, "project-id", "", "override project id (default: store-generated)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name (default: workflow name)")
	cmd.Flags().StringVar(&opts.Theme, "theme", "", "project theme")
	cmd.Flags().IntVar(&opts.TargetLengthMin, "target-length-min", 0, "target length in minutes")

	return cmd
}

func runWorkflow(cmd *cobra.Command, opts *RunOptions, workflowName string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Println("[WORKFLOW-CLI] received interrupt, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	c, err := openCore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer c.Close()

	workflows, err := c.registerWorkflows(opts.WorkflowsDir)
	if err != nil {
		return WrapExitError(ExitMisconfigured, "loading workflows", err)
	}
	if _, ok := workflows[workflowName]; !ok {
		return WrapExitError(ExitMisconfigured, fmt.Sprintf("workflow %q not found under %s", workflowName, opts.WorkflowsDir), contracts.ErrWorkflowNotFound)
	}

	name := opts.Name
	if name == "" {
		name = workflowName
	}
	project, err := c.store.CreateProject(ctx, contracts.Project{
		ID:              contracts.ProjectID(opts.ProjectID),
		Name:            name,
		Theme:           opts.Theme,
		TargetLengthMin: opts.TargetLengthMin,
		Status:          contracts.ProjectInitialized,
		ConfigJSON:      map[string]interface{}{"workflow": workflowName},
	})
	if err != nil {
		return WrapExitError(ExitStoreError, "creating project", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s workflow=%s\n", project.ID, workflowName)

	onProgress := func(state contracts.ExecutionState) {
		fmt.Fprintf(cmd.OutOrStdout(), "last_stage=%s completed=%.0f%% remaining=%s\n",
			state.LastTransition, state.CompletedFraction*100, state.EstimatedRemaining)
	}

	result, err := c.engine.Execute(ctx, contracts.WorkflowName(workflowName), project.ID, nil, onProgress)
	if err != nil {
		return WrapExitError(ExitMisconfigured, "executing workflow", err)
	}

	for name, status := range result.StageStatuses {
		line := fmt.Sprintf("stage=%s status=%s", name, status)
		if msg, ok := result.StageErrors[name]; ok {
			line += fmt.Sprintf(" error=%q", msg)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "project_id=%s status=%s success_rate=%.2f elapsed=%s\n",
		project.ID, result.Status, result.SuccessRate, result.Elapsed)

	switch result.Status {
	case contracts.ProjectCompleted:
		return nil
	case contracts.ProjectCancelled:
		return WrapExitError(ExitCancelled, "execution cancelled", errors.New(result.FirstFatalError))
	default:
		return WrapExitError(ExitFailure, "execution failed", errors.New(result.FirstFatalError))
	}
}

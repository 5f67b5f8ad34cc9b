package main

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the workflow-cli command tree: a cobra surface that
// hosts the core directly against the store, without the HTTP control plane
// cmd/engine-server and cmd/workflow-client front it with.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "workflow-cli",
		Short: "Host the workflow orchestration core directly against its store",
		Long: `workflow-cli drives the Project Store, Artifact Ledger, Dependency
Planner, Resource Arbiter, Engine and Checkpointer in-process, for operators
who want to run or inspect a workflow without standing up the HTTP sidecar.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "workflow.db", "sqlite database path")
	cmd.PersistentFlags().StringVar(&opts.ProjectsRoot, "projects-root", "./projects", "root directory for project artifact layout")
	cmd.PersistentFlags().StringVar(&opts.WorkflowsDir, "workflows-dir", "./workflows", "directory of JSON workflow definitions to register at startup")
	cmd.PersistentFlags().StringVar(&opts.Resources, "resources", "cpu=8", "comma-separated resource_name=capacity pairs for the arbiter")
	cmd.PersistentFlags().Int64Var(&opts.QuotaBytes, "quota-bytes", 10<<30, "per-project artifact byte quota")
	cmd.PersistentFlags().IntVar(&opts.CheckpointRetention, "checkpoint-retention", 5, "number of checkpoints to retain per project")
	cmd.PersistentFlags().StringVar(&opts.IDScheme, "id-scheme", "sortable", "project id scheme: sortable|uuid")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPauseCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewCheckpointCommand(opts))

	return cmd
}

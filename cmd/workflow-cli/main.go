// Command workflow-cli hosts the workflow orchestration core directly
// against its sqlite store: run, resume, inspect and reconcile a project's
// artifacts without the HTTP control plane cmd/engine-server exposes.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "workflow-cli:", err)
		os.Exit(GetExitCode(err))
	}
}

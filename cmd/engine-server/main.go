// Package main provides the entry point for the workflow engine's HTTP host
// binary: it wires the sqlite-backed Project Store, Artifact Ledger,
// Dependency Planner, Resource Arbiter, and Checkpointer into an Engine,
// loads workflow definitions from a directory of JSON files, and serves the
// control-plane API in front of it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/yukkuri-system/workflow-core/api"
	"github.com/yukkuri-system/workflow-core/config"
	"github.com/yukkuri-system/workflow-core/contracts"
	"github.com/yukkuri-system/workflow-core/internal/arbiter"
	"github.com/yukkuri-system/workflow-core/internal/checkpoint"
	"github.com/yukkuri-system/workflow-core/internal/cost"
	"github.com/yukkuri-system/workflow-core/internal/engine"
	"github.com/yukkuri-system/workflow-core/internal/ledger"
	"github.com/yukkuri-system/workflow-core/internal/planning"
	"github.com/yukkuri-system/workflow-core/internal/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP server address")
	dbPath := flag.String("db", "workflow.db", "sqlite database path")
	projectsRoot := flag.String("projects-root", "./projects", "root directory for project artifact layout")
	workflowsDir := flag.String("workflows-dir", "./workflows", "directory of JSON workflow definitions to register at startup")
	resources := flag.String("resources", "cpu=8", "comma-separated resource_name=capacity pairs for the arbiter")
	quotaBytes := flag.Int64("quota-bytes", 10<<30, "per-project artifact byte quota")
	checkpointRetention := flag.Int("checkpoint-retention", 5, "number of checkpoints to retain per project")
	idScheme := flag.String("id-scheme", "sortable", "project id scheme: sortable|uuid")
	flag.Parse()

	scheme := contracts.SchemeSortable
	if *idScheme == "uuid" {
		scheme = contracts.SchemeUUID
	}

	ctx := context.Background()

	st, err := store.Open(ctx, *dbPath, scheme)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrating store: %v", err)
	}

	capacity, err := parseResources(*resources)
	if err != nil {
		log.Fatalf("parsing -resources: %v", err)
	}

	led := ledger.New(*projectsRoot, st, *quotaBytes)
	planner := planning.New()
	arb := arbiter.New(capacity)
	cp := checkpoint.New(st, led, *projectsRoot, *checkpointRetention)

	budget := cost.NewBudgetEnforcer(cost.NewUsageTracker())

	eng := engine.New(st, led, planner, arb, cp, engine.Config{})

	workflows, err := loadWorkflows(*workflowsDir)
	if err != nil {
		log.Fatalf("loading workflows from %s: %v", *workflowsDir, err)
	}
	for name, defs := range workflows {
		if err := eng.RegisterWorkflow(contracts.WorkflowName(name), defs); err != nil {
			log.Fatalf("registering workflow %s: %v", name, err)
		}
		for _, def := range defs {
			eng.RegisterProcessor(def.Name, loggingProcessor{stage: def.Name, budget: budget})
		}
		log.Printf("[ENGINE-SERVER] event=workflow_registered name=%s stages=%d", name, len(defs))
	}

	server := api.NewServer(*addr, st, eng)

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("[ENGINE-SERVER] shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[ENGINE-SERVER] shutdown error: %v", err)
		}
		close(done)
	}()

	log.Printf("[ENGINE-SERVER] event=listening addr=%s db=%s", *addr, *dbPath)
	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	<-done
	log.Println("[ENGINE-SERVER] stopped")
}

// loadWorkflows reads every *.json file in dir as a config.WorkflowConfig
// and returns a map of workflow name to its validated StageDefs.
func loadWorkflows(dir string) (map[string][]contracts.StageDef, error) {
	out := make(map[string][]contracts.StageDef)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[ENGINE-SERVER] event=workflows_dir_missing dir=%s", dir)
			return out, nil
		}
		return nil, err
	}

	loader := config.NewLoader()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := loader.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[cfg.Workflow.Name] = cfg.Workflow.ToStageDefs()
	}

	return out, nil
}

// parseResources turns "gpu=2,cpu=8" into the arbiter's capacity map.
func parseResources(spec string) (map[contracts.ResourceName]int, error) {
	out := make(map[contracts.ResourceName]int)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid resource spec %q, want name=capacity", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid capacity in %q: %w", pair, err)
		}
		out[contracts.ResourceName(strings.TrimSpace(parts[0]))] = n
	}
	return out, nil
}

// loggingProcessor is a placeholder StageProcessor registered for every
// declared stage when no application-specific processor has been wired in.
// A real deployment replaces this with the stage's actual work (a
// transcoder, an LLM call, a TTS request) before calling RegisterProcessor;
// this keeps the binary runnable standalone for smoke-testing a workflow's
// dependency graph end to end.
type loggingProcessor struct {
	stage  contracts.StageName
	budget *cost.BudgetEnforcer
}

func (p loggingProcessor) Execute(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
	select {
	case <-ctx.Done():
		return contracts.StageResult{Status: contracts.ResultCancelled}
	default:
	}

	const estimatedCost = 0 // placeholder stages make no outbound calls
	if err := p.budget.Allow(ctx.ProjectID(), estimatedCost); err != nil && !errors.Is(err, contracts.ErrBudgetNotSet) {
		return contracts.Failed(contracts.KindExecution, err.Error(), contracts.SeverityHigh, contracts.RecoveryAbort)
	}

	log.Printf("[ENGINE-SERVER] event=stage_placeholder_run project=%s stage=%s", ctx.ProjectID(), p.stage)
	p.budget.Record(ctx.ProjectID(), 0, 0, estimatedCost)
	return contracts.Succeeded(map[string]interface{}{
		"placeholder": true,
		"stage":       string(p.stage),
	})
}

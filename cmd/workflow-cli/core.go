package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yukkuri-system/workflow-core/config"
	"github.com/yukkuri-system/workflow-core/contracts"
	"github.com/yukkuri-system/workflow-core/internal/arbiter"
	"github.com/yukkuri-system/workflow-core/internal/checkpoint"
	"github.com/yukkuri-system/workflow-core/internal/engine"
	"github.com/yukkuri-system/workflow-core/internal/ledger"
	"github.com/yukkuri-system/workflow-core/internal/planning"
	"github.com/yukkuri-system/workflow-core/internal/store"
)

// RootOptions holds the persistent flags shared by every subcommand: where
// the store lives and how the core's supporting components are sized.
type RootOptions struct {
	DBPath              string
	ProjectsRoot        string
	WorkflowsDir        string
	Resources           string
	QuotaBytes          int64
	CheckpointRetention int
	IDScheme            string
	Verbose             bool
}

// core bundles the six components a subcommand needs, wired the same way
// cmd/engine-server wires them, minus the HTTP layer.
type core struct {
	store   *store.Store
	ledger  *ledger.Ledger
	planner *planning.Planner
	arbiter *arbiter.Arbiter
	cp      *checkpoint.Checkpointer
	engine  *engine.Engine
}

func (c *core) Close() { c.store.Close() }

func openCore(ctx context.Context, opts *RootOptions) (*core, error) {
	scheme := contracts.SchemeSortable
	if opts.IDScheme == "uuid" {
		scheme = contracts.SchemeUUID
	}

	st, err := store.Open(ctx, opts.DBPath, scheme)
	if err != nil {
		return nil, WrapExitError(ExitStoreError, "opening store", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, WrapExitError(ExitStoreError, "migrating store", err)
	}

	capacity, err := parseResources(opts.Resources)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitMisconfigured, "parsing --resources", err)
	}

	led := ledger.New(opts.ProjectsRoot, st, opts.QuotaBytes)
	planner := planning.New()
	arb := arbiter.New(capacity)
	cp := checkpoint.New(st, led, opts.ProjectsRoot, opts.CheckpointRetention)
	eng := engine.New(st, led, planner, arb, cp, engine.Config{})

	return &core{store: st, ledger: led, planner: planner, arbiter: arb, cp: cp, engine: eng}, nil
}

// registerWorkflows loads every *.json definition from opts.WorkflowsDir,
// registers it with the engine, and attaches a placeholder processor to
// every stage — the same smoke-testing convenience cmd/engine-server offers,
// so `workflow-cli run` works against a workflows directory with no
// application binary in front of it.
func (c *core) registerWorkflows(dir string) (map[string][]contracts.StageDef, error) {
	out := make(map[string][]contracts.StageDef)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
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
		defs := cfg.Workflow.ToStageDefs()
		if err := c.engine.RegisterWorkflow(contracts.WorkflowName(cfg.Workflow.Name), defs); err != nil {
			return nil, err
		}
		for _, def := range defs {
			c.engine.RegisterProcessor(def.Name, placeholderProcessor{stage: def.Name})
		}
		out[cfg.Workflow.Name] = defs
	}

	return out, nil
}

// placeholderProcessor mirrors cmd/engine-server's loggingProcessor: it lets
// `workflow-cli run` smoke-test a workflow's dependency graph end to end
// against a directory with no application-specific processors wired in.
type placeholderProcessor struct {
	stage contracts.StageName
}

func (p placeholderProcessor) Execute(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
	select {
	case <-ctx.Done():
		return contracts.StageResult{Status: contracts.ResultCancelled}
	default:
	}
	log.Printf("[WORKFLOW-CLI] event=stage_placeholder_run project=%s stage=%s", ctx.ProjectID(), p.stage)
	return contracts.Succeeded(map[string]interface{}{"placeholder": true, "stage": string(p.stage)})
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

// workflowNameFromConfig recovers the workflow name a project was started
// with from its stored ConfigJSON, where the run command writes it (the
// same convention api/handlers.go uses).
func workflowNameFromConfig(p contracts.Project) (contracts.WorkflowName, error) {
	if p.ConfigJSON == nil {
		return "", fmt.Errorf("project %s has no recorded workflow name: %w", p.ID, contracts.ErrInvalidInput)
	}
	name, _ := p.ConfigJSON["workflow"].(string)
	if name == "" {
		return "", fmt.Errorf("project %s has no recorded workflow name: %w", p.ID, contracts.ErrInvalidInput)
	}
	return contracts.WorkflowName(name), nil
}

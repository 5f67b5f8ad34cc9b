package engine

import (
	"context"

	"github.com/yukkuri-system/workflow-core/contracts"
	wfcontext "github.com/yukkuri-system/workflow-core/internal/context"
)

// stageContext is the narrow surface a StageProcessor sees: it has no
// access to the store, ledger or arbiter beyond RegisterArtifact and
// RecordApiUsage (§5: "no stage-processor code acquires these locks
// directly").
type stageContext struct {
	ctx       context.Context
	projectID contracts.ProjectID
	stageName contracts.StageName
	input     map[string]interface{}
	ledger    contracts.ArtifactLedger
	usageFn   func(provider, endpoint string, tokensIn, tokensOut contracts.TokenCount, responseTimeMs int64, statusCode int)
	memory    *wfcontext.Memory
}

func (s *stageContext) Context() context.Context       { return s.ctx }
func (s *stageContext) ProjectID() contracts.ProjectID { return s.projectID }
func (s *stageContext) StageName() contracts.StageName { return s.stageName }
func (s *stageContext) Input() map[string]interface{}  { return s.input }
func (s *stageContext) Done() <-chan struct{}          { return s.ctx.Done() }

func (s *stageContext) RegisterArtifact(relPath string, typ contracts.ArtifactType, category contracts.ArtifactCategory, data []byte, metadata map[string]interface{}, isTemporary bool) (contracts.ArtifactID, error) {
	ref, err := s.ledger.WriteFile(s.ctx, s.projectID, relPath, data, contracts.WriteOpts{
		Category:    category,
		Type:        typ,
		IsTemporary: isTemporary,
		Metadata:    metadata,
		StageName:   s.stageName,
	})
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *stageContext) RecordApiUsage(provider, endpoint string, tokensIn, tokensOut contracts.TokenCount, responseTimeMs int64, statusCode int) {
	s.usageFn(provider, endpoint, tokensIn, tokensOut, responseTimeMs, statusCode)
}

func (s *stageContext) MemoryGet(key string) (string, bool) { return s.memory.Get(key) }
func (s *stageContext) MemoryPut(key string, value string)  { s.memory.Put(key, value) }

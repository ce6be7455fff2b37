package storage

import (
	"context"

	"github.com/sandoak/gsdharness/pkg/types"
)

// Store defines durable persistence for every resource the harness mutates:
// sessions, their output, the worker/orchestrator message exchange, plans,
// per-project execution state, and active file claims. It is implemented by
// a SQLite-backed store; the interface exists so the scheduler, channel and
// supervisor packages depend on behavior, not a storage engine.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context) ([]*types.Session, error)
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
	UpdateSession(ctx context.Context, s *types.Session) error
	TouchSession(ctx context.Context, id string) error

	// Output chunks
	AppendOutputChunk(ctx context.Context, c *types.OutputChunk) error
	ListOutputChunks(ctx context.Context, sessionID string, afterSeq int64) ([]*types.OutputChunk, error)

	// Worker messages
	CreateWorkerMessage(ctx context.Context, m *types.WorkerMessage) error
	GetWorkerMessage(ctx context.Context, id string) (*types.WorkerMessage, error)
	ListPendingWorkerMessages(ctx context.Context, sessionID string) ([]*types.WorkerMessage, error)
	OldestPendingCheckpoint(ctx context.Context, sessionID string) (*types.WorkerMessage, error)
	LatestResponseRequiredMessage(ctx context.Context, sessionID string) (*types.WorkerMessage, error)
	RespondToWorkerMessage(ctx context.Context, id string, responseType types.OrchestratorMsgType, payload []byte) error
	ExpirePendingWorkerMessagesOlderThan(ctx context.Context, cutoffSeconds int64) (int, error)

	// Orchestrator messages
	CreateOrchestratorMessage(ctx context.Context, m *types.OrchestratorMessage) error
	ListOrchestratorMessages(ctx context.Context, sessionID string) ([]*types.OrchestratorMessage, error)

	// Plans
	UpsertPlan(ctx context.Context, p *types.Plan) error
	GetPlan(ctx context.Context, project string, id types.PlanID) (*types.Plan, error)
	ListPlans(ctx context.Context, project string) ([]*types.Plan, error)
	UpdatePlanStatus(ctx context.Context, project string, id types.PlanID, status types.PlanStatus) error

	// Project execution state
	GetProjectState(ctx context.Context, project string) (*types.ProjectExecutionState, error)
	SaveProjectState(ctx context.Context, st *types.ProjectExecutionState) error

	// Active file entries
	ClaimFile(ctx context.Context, e *types.ActiveFileEntry) error
	ReleaseFilesForSession(ctx context.Context, sessionID string) error
	ListActiveFiles(ctx context.Context, project string) ([]*types.ActiveFileEntry, error)

	Close() error
}

package types

import (
	"time"
)

// SessionStatus represents the lifecycle state of a Session.
type SessionStatus string

const (
	SessionIdle              SessionStatus = "idle"
	SessionRunning           SessionStatus = "running"
	SessionWaitingCheckpoint SessionStatus = "waiting_checkpoint"
	SessionCompleted         SessionStatus = "completed"
	SessionFailed            SessionStatus = "failed"
)

// Terminal reports whether the status is one a session never leaves.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Active reports whether the status implies a live child process.
func (s SessionStatus) Active() bool {
	return s == SessionRunning || s == SessionWaitingCheckpoint
}

// Session is a single child-process execution bound to a slot.
//
// Invariants: at most one session per slot in a non-terminal status; PID is
// set once the child process has started and kept after it ends; EndedAt is
// set exactly when Status is Completed or Failed.
type Session struct {
	ID         string        `db:"id" json:"id"`
	Slot       int           `db:"slot" json:"slot"`
	WorkDir    string        `db:"work_dir" json:"workDir"`
	Command    string        `db:"command" json:"command"`
	PID        *int          `db:"pid" json:"pid,omitempty"`
	Status     SessionStatus `db:"status" json:"status"`
	Orphaned   bool          `db:"orphaned" json:"orphaned,omitempty"`
	StartedAt  time.Time     `db:"started_at" json:"startedAt"`
	EndedAt    *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	LastPolled time.Time     `db:"last_polled_at" json:"lastPolledAt"`
}

// StreamTag identifies the origin stream of an OutputChunk. The PTY model
// merges stdout and stderr, so in practice this is always StreamStdout, but
// the column exists for a future non-PTY backend.
type StreamTag string

const (
	StreamStdout StreamTag = "stdout"
	StreamStderr StreamTag = "stderr"
)

// OutputChunk is a durable, append-only slice of a session's byte stream.
type OutputChunk struct {
	SessionID string    `db:"session_id" json:"sessionId"`
	Seq       int64     `db:"seq" json:"seq"`
	Stream    StreamTag `db:"stream" json:"stream"`
	Data      []byte    `db:"data" json:"data"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// WorkerMessageType enumerates the worker -> orchestrator message kinds.
type WorkerMessageType string

const (
	MsgSessionReady       WorkerMessageType = "session_ready"
	MsgTaskStarted        WorkerMessageType = "task_started"
	MsgProgressUpdate     WorkerMessageType = "progress_update"
	MsgTaskCompleted      WorkerMessageType = "task_completed"
	MsgTaskFailed         WorkerMessageType = "task_failed"
	MsgVerificationNeeded WorkerMessageType = "verification_needed"
	MsgDecisionNeeded     WorkerMessageType = "decision_needed"
	MsgActionNeeded       WorkerMessageType = "action_needed"
	MsgCredentialsNeeded  WorkerMessageType = "credentials_needed"
)

// ResponseRequired reports whether this message type blocks on an
// orchestrator response rather than being purely informational.
func (t WorkerMessageType) ResponseRequired() bool {
	switch t {
	case MsgVerificationNeeded, MsgDecisionNeeded, MsgActionNeeded, MsgCredentialsNeeded:
		return true
	default:
		return false
	}
}

// WorkerMessageStatus is the lifecycle of a worker message.
type WorkerMessageStatus string

const (
	WorkerMsgPending   WorkerMessageStatus = "pending"
	WorkerMsgResponded WorkerMessageStatus = "responded"
	WorkerMsgExpired   WorkerMessageStatus = "expired"
)

// WorkerMessage is a message posted by a worker (or on a worker's behalf)
// for the orchestrator client to observe and, for response-required types,
// answer.
type WorkerMessage struct {
	ID              string              `db:"id" json:"id"`
	SessionID       string              `db:"session_id" json:"sessionId"`
	Type            WorkerMessageType   `db:"type" json:"type"`
	Payload         []byte              `db:"payload" json:"payload"`
	Status          WorkerMessageStatus `db:"status" json:"status"`
	CreatedAt       time.Time           `db:"created_at" json:"createdAt"`
	RespondedAt     *time.Time          `db:"responded_at" json:"respondedAt,omitempty"`
	ResponsePayload []byte              `db:"response_payload" json:"responsePayload,omitempty"`
	ResponseType    OrchestratorMsgType `db:"response_type" json:"responseType,omitempty"`
}

// OrchestratorMsgType enumerates orchestrator -> worker message kinds.
type OrchestratorMsgType string

const (
	OrchAssignTask          OrchestratorMsgType = "assign_task"
	OrchVerificationResult  OrchestratorMsgType = "verification_result"
	OrchDecisionMade        OrchestratorMsgType = "decision_made"
	OrchActionCompleted     OrchestratorMsgType = "action_completed"
	OrchCredentialsProvided OrchestratorMsgType = "credentials_provided"
	OrchAbortTask           OrchestratorMsgType = "abort_task"
)

// OrchestratorMessage is a message sent by the orchestrator client, either
// unsolicited (assign_task, abort_task) or as the answer to a prior worker
// message (InResponseTo set).
type OrchestratorMessage struct {
	ID           string              `db:"id" json:"id"`
	SessionID    string              `db:"session_id" json:"sessionId"`
	Type         OrchestratorMsgType `db:"type" json:"type"`
	Payload      []byte              `db:"payload" json:"payload"`
	InResponseTo *string             `db:"in_response_to" json:"inResponseTo,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
}

// PlanStatus is the lifecycle state of a Plan.
type PlanStatus string

const (
	PlanPlanned   PlanStatus = "planned"
	PlanExecuting PlanStatus = "executing"
	PlanExecuted  PlanStatus = "executed"
	PlanVerified  PlanStatus = "verified"
)

// rank gives the total order used to enforce "never downgrade" invariants.
func (s PlanStatus) rank() int {
	switch s {
	case PlanPlanned:
		return 0
	case PlanExecuting:
		return 1
	case PlanExecuted:
		return 2
	case PlanVerified:
		return 3
	default:
		return -1
	}
}

// Downgrade reports whether moving from s to next would decrease rank,
// i.e. violate the plan state machine outside of an explicit force_reset.
func (s PlanStatus) Downgrade(next PlanStatus) bool {
	return next.rank() < s.rank()
}

// PlanID identifies a plan by its (phase, plan) coordinate within a project.
type PlanID struct {
	Phase int `json:"phase"`
	Plan  int `json:"plan"`
}

// Less implements the scheduler's deterministic tie-break: lower phase
// first, then lower plan number.
func (p PlanID) Less(o PlanID) bool {
	if p.Phase != o.Phase {
		return p.Phase < o.Phase
	}
	return p.Plan < o.Plan
}

func (p PlanID) String() string {
	return formatPlanID(p.Phase, p.Plan)
}

// VerificationSpec names a single check to run against an external backend
// (shell, HTTP, browser). The harness core never executes these; it only
// stores and reports them.
type VerificationSpec struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"` // "shell" | "http" | "browser"
	Spec string `json:"spec" yaml:"spec"`
}

// VerificationManifest groups required and optional verification specs
// declared by a plan document.
type VerificationManifest struct {
	MustPass   []VerificationSpec `json:"mustPass" yaml:"must_pass"`
	ShouldPass []VerificationSpec `json:"shouldPass,omitempty" yaml:"should_pass,omitempty"`
}

// Plan is a unit of work identified by (phase, plan) with declared
// dependencies and file sets, as read from a PLAN document.
type Plan struct {
	Project      string               `db:"project" json:"project"`
	Phase        int                  `db:"phase" json:"phase"`
	Plan         int                  `db:"plan" json:"plan"`
	Status       PlanStatus           `db:"status" json:"status"`
	DependsOn    []PlanID             `db:"-" json:"dependsOn"`
	FilesWritten []string             `db:"-" json:"filesWritten"`
	FilesRead    []string             `db:"-" json:"filesRead"`
	Autonomous   bool                 `db:"autonomous" json:"autonomous"`
	Manifest     VerificationManifest `db:"-" json:"manifest"`
	CreatedAt    time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time            `db:"updated_at" json:"updatedAt"`
}

// ID returns the plan's (phase, plan) coordinate.
func (p *Plan) ID() PlanID { return PlanID{Phase: p.Phase, Plan: p.Plan} }

// ProjectExecutionState is the per-project scheduler view persisted
// alongside plans.
type ProjectExecutionState struct {
	Project            string    `db:"project" json:"project"`
	HighestExecuted    int       `db:"highest_executed" json:"highestExecuted"`
	HighestVerified    int       `db:"highest_verified" json:"highestVerified"`
	PendingVerifyPhase *int      `db:"pending_verify_phase" json:"pendingVerifyPhase,omitempty"`
	ActivePhase        int       `db:"active_phase" json:"activePhase"`
	ActivePlan         int       `db:"active_plan" json:"activePlan"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

// FileMode distinguishes read holders from the single write holder of an
// ActiveFileEntry.
type FileMode string

const (
	FileRead  FileMode = "read"
	FileWrite FileMode = "write"
)

// ActiveFileEntry records one live read or write claim on a path by a
// running plan's session, for scheduler admission control.
type ActiveFileEntry struct {
	Path      string    `db:"path" json:"path"`
	SessionID string    `db:"session_id" json:"sessionId"`
	Project   string    `db:"project" json:"project"`
	Phase     int       `db:"phase" json:"phase"`
	Plan      int       `db:"plan" json:"plan"`
	Mode      FileMode  `db:"mode" json:"mode"`
	StartedAt time.Time `db:"started_at" json:"startedAt"`
}

// Checkpoint is the logical, client-facing view of a pending
// response-required WorkerMessage: the minimal payload needed to answer it.
type Checkpoint struct {
	MessageID string            `json:"messageId"`
	SessionID string            `json:"sessionId"`
	Type      WorkerMessageType `json:"type"`
	Payload   []byte            `json:"payload"`
	CreatedAt time.Time         `json:"createdAt"`
}

func formatPlanID(phase, plan int) string {
	return itoa(phase) + "-" + itoa(plan)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore implements Store on top of a single-file SQLite database,
// opened in WAL mode with foreign keys enforced.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the SQLite database at dataDir/harness.db
// and applies any pending goose migrations.
func Open(dataDir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "harness.db")

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY storms

	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies every pending goose migration against db.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Sessions

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *types.Session) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, slot, work_dir, command, pid, status, orphaned, started_at, ended_at, last_polled_at)
		VALUES (:id, :slot, :work_dir, :command, :pid, :status, :orphaned, :started_at, :ended_at, :last_polled_at)
	`, sess)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	err := s.db.GetContext(ctx, &sess, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("session_not_found", "session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	var out []*types.Session
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM sessions ORDER BY started_at`); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	var out []*types.Session
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM sessions WHERE status IN (?, ?) ORDER BY slot`,
		types.SessionRunning, types.SessionWaitingCheckpoint)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *types.Session) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE sessions SET slot=:slot, work_dir=:work_dir, command=:command, pid=:pid,
			status=:status, orphaned=:orphaned, started_at=:started_at, ended_at=:ended_at,
			last_polled_at=:last_polled_at
		WHERE id=:id
	`, sess)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	return requireRowsAffected(res, "session", sess.ID)
}

func (s *SQLiteStore) TouchSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_polled_at=? WHERE id=?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return requireRowsAffected(res, "session", id)
}

// Output chunks

func (s *SQLiteStore) AppendOutputChunk(ctx context.Context, c *types.OutputChunk) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO output_chunks (session_id, seq, stream, data, created_at)
		VALUES (:session_id, :seq, :stream, :data, :created_at)
	`, c)
	if err != nil {
		return fmt.Errorf("append output chunk for session %s: %w", c.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ListOutputChunks(ctx context.Context, sessionID string, afterSeq int64) ([]*types.OutputChunk, error) {
	var out []*types.OutputChunk
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM output_chunks WHERE session_id = ? AND seq > ? ORDER BY seq
	`, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list output chunks for session %s: %w", sessionID, err)
	}
	return out, nil
}

// Worker messages

func (s *SQLiteStore) CreateWorkerMessage(ctx context.Context, m *types.WorkerMessage) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO worker_messages (id, session_id, type, payload, status, created_at, responded_at, response_payload, response_type)
		VALUES (:id, :session_id, :type, :payload, :status, :created_at, :responded_at, :response_payload, :response_type)
	`, m)
	if err != nil {
		return fmt.Errorf("create worker message %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkerMessage(ctx context.Context, id string) (*types.WorkerMessage, error) {
	var m types.WorkerMessage
	err := s.db.GetContext(ctx, &m, `SELECT * FROM worker_messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("message_not_found", "worker message %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker message %s: %w", id, err)
	}
	return &m, nil
}

func (s *SQLiteStore) ListPendingWorkerMessages(ctx context.Context, sessionID string) ([]*types.WorkerMessage, error) {
	var out []*types.WorkerMessage
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM worker_messages WHERE session_id = ? AND status = ? ORDER BY created_at
	`, sessionID, types.WorkerMsgPending)
	if err != nil {
		return nil, fmt.Errorf("list pending worker messages for session %s: %w", sessionID, err)
	}
	return out, nil
}

func (s *SQLiteStore) OldestPendingCheckpoint(ctx context.Context, sessionID string) (*types.WorkerMessage, error) {
	msgs, err := s.ListPendingWorkerMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.Type.ResponseRequired() {
			return m, nil
		}
	}
	return nil, nil
}

// LatestResponseRequiredMessage returns the most recently created
// response-required message for a session, in any status, or nil if the
// worker has never posted one. worker_await polls this to learn when its
// outstanding message has been answered.
func (s *SQLiteStore) LatestResponseRequiredMessage(ctx context.Context, sessionID string) (*types.WorkerMessage, error) {
	responseRequiredTypes := []types.WorkerMessageType{
		types.MsgVerificationNeeded, types.MsgDecisionNeeded, types.MsgActionNeeded, types.MsgCredentialsNeeded,
	}
	query, args, err := sqlx.In(`
		SELECT * FROM worker_messages WHERE session_id = ? AND type IN (?) ORDER BY created_at DESC LIMIT 1
	`, sessionID, responseRequiredTypes)
	if err != nil {
		return nil, fmt.Errorf("build latest response-required query: %w", err)
	}
	query = s.db.Rebind(query)

	var m types.WorkerMessage
	err = s.db.GetContext(ctx, &m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest response-required message for session %s: %w", sessionID, err)
	}
	return &m, nil
}

func (s *SQLiteStore) RespondToWorkerMessage(ctx context.Context, id string, responseType types.OrchestratorMsgType, payload []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE worker_messages SET status=?, responded_at=?, response_payload=?, response_type=?
		WHERE id=? AND status=?
	`, types.WorkerMsgResponded, time.Now().UTC(), payload, responseType, id, types.WorkerMsgPending)
	if err != nil {
		return fmt.Errorf("respond to worker message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("respond to worker message %s: %w", id, err)
	}
	if n == 0 {
		if _, getErr := s.GetWorkerMessage(ctx, id); getErr != nil {
			return getErr
		}
		return apierr.New(apierr.Conflict, "message_already_resolved", "worker message "+id+" is not pending")
	}
	return nil
}

func (s *SQLiteStore) ExpirePendingWorkerMessagesOlderThan(ctx context.Context, cutoffSeconds int64) (int, error) {
	cutoff := time.Now().Add(-time.Duration(cutoffSeconds) * time.Second).UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE worker_messages SET status=? WHERE status=? AND created_at < ?
	`, types.WorkerMsgExpired, types.WorkerMsgPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending worker messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending worker messages: %w", err)
	}
	return int(n), nil
}

// Orchestrator messages

func (s *SQLiteStore) CreateOrchestratorMessage(ctx context.Context, m *types.OrchestratorMessage) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orchestrator_messages (id, session_id, type, payload, in_response_to, created_at)
		VALUES (:id, :session_id, :type, :payload, :in_response_to, :created_at)
	`, m)
	if err != nil {
		return fmt.Errorf("create orchestrator message %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListOrchestratorMessages(ctx context.Context, sessionID string) ([]*types.OrchestratorMessage, error) {
	var out []*types.OrchestratorMessage
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM orchestrator_messages WHERE session_id = ? ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list orchestrator messages for session %s: %w", sessionID, err)
	}
	return out, nil
}

// Plans

type planRow struct {
	Project      string    `db:"project"`
	Phase        int       `db:"phase"`
	Plan         int       `db:"plan"`
	Status       string    `db:"status"`
	DependsOn    string    `db:"depends_on"`
	FilesWritten string    `db:"files_written"`
	FilesRead    string    `db:"files_read"`
	Autonomous   bool      `db:"autonomous"`
	Manifest     string    `db:"manifest"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toPlanRow(p *types.Plan) (*planRow, error) {
	deps, err := json.Marshal(p.DependsOn)
	if err != nil {
		return nil, err
	}
	written, err := json.Marshal(p.FilesWritten)
	if err != nil {
		return nil, err
	}
	read, err := json.Marshal(p.FilesRead)
	if err != nil {
		return nil, err
	}
	manifest, err := json.Marshal(p.Manifest)
	if err != nil {
		return nil, err
	}
	return &planRow{
		Project: p.Project, Phase: p.Phase, Plan: p.Plan, Status: string(p.Status),
		DependsOn: string(deps), FilesWritten: string(written), FilesRead: string(read),
		Autonomous: p.Autonomous, Manifest: string(manifest),
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}, nil
}

func (r *planRow) toPlan() (*types.Plan, error) {
	p := &types.Plan{
		Project: r.Project, Phase: r.Phase, Plan: r.Plan, Status: types.PlanStatus(r.Status),
		Autonomous: r.Autonomous, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.DependsOn), &p.DependsOn); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.FilesWritten), &p.FilesWritten); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.FilesRead), &p.FilesRead); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Manifest), &p.Manifest); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) UpsertPlan(ctx context.Context, p *types.Plan) error {
	row, err := toPlanRow(p)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", p.ID(), err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO plans (project, phase, plan, status, depends_on, files_written, files_read, autonomous, manifest, created_at, updated_at)
		VALUES (:project, :phase, :plan, :status, :depends_on, :files_written, :files_read, :autonomous, :manifest, :created_at, :updated_at)
		ON CONFLICT(project, phase, plan) DO UPDATE SET
			status=excluded.status, depends_on=excluded.depends_on, files_written=excluded.files_written,
			files_read=excluded.files_read, autonomous=excluded.autonomous, manifest=excluded.manifest,
			updated_at=excluded.updated_at
	`, row)
	if err != nil {
		return fmt.Errorf("upsert plan %s: %w", p.ID(), err)
	}
	return nil
}

func (s *SQLiteStore) GetPlan(ctx context.Context, project string, id types.PlanID) (*types.Plan, error) {
	var row planRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM plans WHERE project=? AND phase=? AND plan=?
	`, project, id.Phase, id.Plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("plan_not_found", "plan %s/%s not found", project, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s/%s: %w", project, id, err)
	}
	return row.toPlan()
}

func (s *SQLiteStore) ListPlans(ctx context.Context, project string) ([]*types.Plan, error) {
	var rows []planRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM plans WHERE project=? ORDER BY phase, plan
	`, project)
	if err != nil {
		return nil, fmt.Errorf("list plans for %s: %w", project, err)
	}
	out := make([]*types.Plan, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPlan()
		if err != nil {
			return nil, fmt.Errorf("decode plan row: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLiteStore) UpdatePlanStatus(ctx context.Context, project string, id types.PlanID, status types.PlanStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status=?, updated_at=? WHERE project=? AND phase=? AND plan=?
	`, status, time.Now().UTC(), project, id.Phase, id.Plan)
	if err != nil {
		return fmt.Errorf("update plan status %s/%s: %w", project, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan status %s/%s: %w", project, id, err)
	}
	if n == 0 {
		return apierr.NotFoundf("plan_not_found", "plan %s/%s not found", project, id)
	}
	return nil
}

// Project execution state

func (s *SQLiteStore) GetProjectState(ctx context.Context, project string) (*types.ProjectExecutionState, error) {
	var st types.ProjectExecutionState
	err := s.db.GetContext(ctx, &st, `SELECT * FROM project_execution_state WHERE project=?`, project)
	if errors.Is(err, sql.ErrNoRows) {
		return &types.ProjectExecutionState{Project: project}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project state %s: %w", project, err)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveProjectState(ctx context.Context, st *types.ProjectExecutionState) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO project_execution_state (project, highest_executed, highest_verified, pending_verify_phase, active_phase, active_plan, updated_at)
		VALUES (:project, :highest_executed, :highest_verified, :pending_verify_phase, :active_phase, :active_plan, :updated_at)
		ON CONFLICT(project) DO UPDATE SET
			highest_executed=excluded.highest_executed, highest_verified=excluded.highest_verified,
			pending_verify_phase=excluded.pending_verify_phase, active_phase=excluded.active_phase,
			active_plan=excluded.active_plan, updated_at=excluded.updated_at
	`, st)
	if err != nil {
		return fmt.Errorf("save project state %s: %w", st.Project, err)
	}
	return nil
}

// Active file entries

func (s *SQLiteStore) ClaimFile(ctx context.Context, e *types.ActiveFileEntry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO active_file_entries (path, session_id, project, phase, plan, mode, started_at)
		VALUES (:path, :session_id, :project, :phase, :plan, :mode, :started_at)
	`, e)
	if err != nil {
		return fmt.Errorf("claim file %s for session %s: %w", e.Path, e.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ReleaseFilesForSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM active_file_entries WHERE session_id=?`, sessionID)
	if err != nil {
		return fmt.Errorf("release files for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveFiles(ctx context.Context, project string) ([]*types.ActiveFileEntry, error) {
	var out []*types.ActiveFileEntry
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM active_file_entries WHERE project=?`, project)
	if err != nil {
		return nil, fmt.Errorf("list active files for %s: %w", project, err)
	}
	return out, nil
}

func requireRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected for %s %s: %w", resource, id, err)
	}
	if n == 0 {
		return apierr.NotFoundf(resource+"_not_found", "%s %s not found", resource, id)
	}
	return nil
}

/*
Package storage provides SQLite-backed durable persistence for the harness:
sessions, their output chunks, the worker/orchestrator message exchange,
plans, per-project execution state, and active file claims.

SQLiteStore opens a single file, <dataDir>/harness.db, in WAL mode with
foreign keys enforced, and applies any pending goose migrations embedded
under migrations/ before returning. A single connection is kept open
(db.SetMaxOpenConns(1)) because modernc.org/sqlite serializes writers at the
driver level regardless of pool size; holding one connection avoids
SQLITE_BUSY retries under concurrent subsystem access.

Plans store their dependency list, file sets, and verification manifest as
JSON text columns (plans.depends_on, files_written, files_read, manifest)
rather than normalized join tables, since the scheduler always reads a whole
plan at once and never queries into those fields directly — normalizing them
would only add join overhead with no admission-rule benefit.

Callers that need to distinguish "not found" from other failures should use
errors.As against *apierr.Error and switch on its Kind; GetSession,
GetWorkerMessage and GetPlan return an apierr.NotFound-kind error rather
than a bare sql.ErrNoRows. GetProjectState returns a zero-valued state for
an unknown project, and LatestResponseRequiredMessage returns nil with no
error when there is no such message.
*/
package storage

/*
Package types defines the data model shared by every harness subsystem:
sessions, output chunks, worker/orchestrator messages, plans, project
execution state, active file entries, and the checkpoint view derived from
pending worker messages.

None of these types own behavior beyond small invariant helpers (e.g.
SessionStatus.Terminal()); the subsystems in pkg/storage, pkg/scheduler,
pkg/channel and pkg/ptysup mutate them according to the rules in the harness
specification.
*/
package types

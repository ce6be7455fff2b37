/*
Package scheduler implements the Dependency-Graph Scheduler. Every tick it
computes the set of Planned plans eligible to start, in a fixed order, and
hands each to a Spawner until a slot is unavailable.

A plan is eligible when it passes, in order:

  - deps-met: every plan it depends_on has reached Executed (or Verified).
  - verify-gate: while a phase is pending verification, its phase is at
    most one past that pending phase; when no phase is pending
    verification the gate does not apply.
  - plan-lookahead: its phase is within Config.PlanLookahead (default 5) of
    the project's currently active phase.
  - file-conflict: none of its declared read/write files collide with an
    active claim held by another running plan (a write excludes everything;
    a read only excludes a concurrent write).
  - slot-availability: the Spawner still has a free slot. This is checked
    last and per-candidate, because admitting one plan can exhaust slots for
    the rest of the tick.

Eligible plans are ordered by the tie-break (lower phase first, then lower
plan number within a phase) before slot/file checks run, so admission is
deterministic given the same store state.

CompletePlan and VerifyPhase in completion.go advance plans and phases:
CompletePlan sets a plan to Executed and VerifyPhase sets every plan of a
phase that is not yet Verified to Verified. Neither checks the plan's
current status first. Only ForceReset, which exists for an explicit
operator-directed phase restart, moves plans back to Planned.
*/
package scheduler

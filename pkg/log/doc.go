/*
Package log provides structured logging for the harness using zerolog.

It wraps zerolog to give every subsystem a component-scoped child logger
(WithComponent, WithSession, WithPlan) built from one global instance
configured once at startup via Init. JSON output is used in production;
console output with a human-readable timestamp is available for local runs.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("scheduler")
	logger.Info().Str("project", "acme").Int("phase", 3).Msg("admitted plan")

Fields attached by WithSession and WithPlan let every log line from a given
session or plan be filtered and correlated without passing a logger through
every call site by hand — subsystems store the scoped logger once in their
struct (see pkg/scheduler.Scheduler.logger) rather than re-deriving it per
call.
*/
package log

/*
Package log provides structured logging for tasque using zerolog.

A single global Logger is configured once via Init and shared by the
CLI, the supervisor, and the worker harness. Component loggers
(WithComponent) and the two context helpers this package actually
needs, WithTaskID and WithPID, attach fields without repeating them at
every call site.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	svLog := log.WithComponent("supervisor")
	svLog.Info().Msg("supervisor started")
	log.WithTaskID(42).Info().Int("pid", pid).Msg("admitted task")

JSONOutput selects JSON records for machine consumption or a
console-formatted writer for interactive use; both carry a timestamp.
*/
package log

/*
Package log provides structured logging for uptimed using zerolog.

It wraps zerolog to give JSON or console output, a configurable level, and
component-scoped child loggers for the daemon's monitoring, consolidation and
instance-lock subsystems.

	┌────────────────── LOGGING SYSTEM ──────────────────┐
	│  Global Logger (zerolog.Logger)                     │
	│    initialized once via log.Init()                  │
	│                                                      │
	│  Config{Level, JSONOutput, Output}                  │
	│    JSON in production, console (human) in dev       │
	│                                                      │
	│  Context loggers                                    │
	│    WithComponent("monitor")                         │
	│    WithTaskIndex(3)                                 │
	│    WithProvider("k8s-ingress")                      │
	└──────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	taskLog := log.WithTaskIndex(2)
	taskLog.Warn().Str("service", svc.String()).Msg("service check failed")

Never log probe secrets (mongo URIs with credentials, k8s bearer tokens) —
log the service key, not the check's connection string.
*/
package log

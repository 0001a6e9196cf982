/*
Package log provides structured logging for Directord, wrapping
zerolog with a single global logger and a small set of child-logger
constructors keyed by the fields that recur across the coordinator and
the worker: component name and client identity.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("coordinator")
	logger.Info().Msg("coordinator started")

	logger = log.WithIdentity("nodeA")
	logger.Warn().Err(err).Msg("heartbeat send failed")

Every long-running role (heartbeat tracker, dispatcher, return
manager, worker) logs through child loggers from WithComponent or
WithIdentity rather than the package-level Logger, so every line it
emits carries that role's identifying field. Some derive theirs once
at construction; others derive one per loop or per call.
*/
package log

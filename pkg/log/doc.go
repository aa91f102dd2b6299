/*
Package log provides structured logging for the router using zerolog.

A single global Logger is configured once via Init and then scoped with
component/node/task-specific child loggers so callers don't have to
repeat context fields at every call site.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	routerLog := log.WithComponent("router")
	routerLog.Info().Str("task_id", id).Msg("task routed")

	taskLog := log.WithTaskID(id)
	taskLog.Error().Err(err).Msg("execution failed")
*/
package log

/*
Package log provides structured logging for the deployment agent using
zerolog.

The package wraps zerolog with a process-global logger configured once by
the CLI entrypoint via Init, plus child-logger helpers that attach the
fields shared by the rest of the codebase:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: false})

	syncLog := log.WithComponent("sync")
	syncLog.Info().Str("path", rel).Msg("File created")

Components receive their logger through constructors; only cmd/aideploy
touches the global. JSON output is meant for CI pipelines, console output
for interactive runs.

Levels are debug, info, warn and error; Fatal logs and exits the process
and is reserved for the entrypoint.
*/
package log

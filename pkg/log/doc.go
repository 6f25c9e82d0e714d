/*
Package log provides structured logging for syncstored using zerolog.

A single global zerolog.Logger is configured once via Init and then
narrowed per request with the With* helpers, which attach the fields
that matter for a storage request: the component doing the logging, the
numeric uid the request is scoped to, the collection name, and a
per-request correlation id.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	reqLog := log.WithUID(uid).With().Str("request_id", reqID).Logger()
	reqLog.Info().Str("collection", collection).Msg("post_bsos")

	dispatchLog := log.WithComponent("dispatch")
	dispatchLog.Warn().Err(err).Msg("write_lock conflict")

Init chooses between zerolog's JSON writer and its ConsoleWriter based on
Config.JSONOutput; servers run JSON, local development runs console.

Fatal-level logging calls os.Exit(1) after writing the log line — reserve
it for startup failures the process cannot recover from (backend
unreachable, bad config), never for per-request errors.
*/
package log

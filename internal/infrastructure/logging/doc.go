// Package logging is the runner's operational log: what the runner itself
// did (extractions, sessions, notifier failures), as opposed to package
// logstore, which holds the managed executable's output.
//
// New builds a log/slog logger tagged with service and version. The primary
// handler writes text or JSON to stdout or stderr; a JSON diagnostics file and
// the systemd journal can be added as extra sinks, fanned out with slog-multi.
// A sink that cannot be opened is reported on the primary output and skipped.
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: text       # text, json
//	  output: stderr     # stdout, stderr
//	  file:
//	    path: ./data/diagnostics.log
//	  journal: false
//
// Components receive a child logger:
//
//	log := logging.New(cfg.Logging, version)
//	defer log.Close()
//	store.SetLogger(log.With("component", "artifact"))
package logging

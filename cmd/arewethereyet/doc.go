// Command arewethereyet reports aggregated progress for multi-step work.
//
// Architecture overview:
//   - Trackers: internal/tracker builds a tree of counters, streams and weighted
//     groups. Every change bubbles up to the root with the name of the tracker
//     that caused it.
//   - Events: internal/progress attaches a root to the hub as one run and turns
//     changes into RUN_START/CHANGE/RUN_DONE/RUN_ERROR events. The hub batches
//     them on a background goroutine and fans out to the configured sinks
//     (zap log, Prometheus, run store, milestone notifications).
//   - Persistence: runs and their completion history are kept in memory, SQLite
//     or Postgres and served read-only under /api/runs.
//   - Commands: `transfer` copies files, URLs and gs:// objects into a local
//     directory or bucket, `serve` exposes the HTTP API, and `demo` drives a
//     synthetic tree so the renderer and sinks can be watched end to end.
//
// Quick checklist:
//   - Configure with a YAML file (--config) or AWTY_* environment variables,
//     e.g. AWTY_SINKS_STORE_KIND=sqlite or AWTY_SERVER_ENABLED=true.
//   - Run locally: go run ./cmd/arewethereyet transfer ./photos.zip https://example.com/a.iso
package main

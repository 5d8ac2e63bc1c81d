// Package logstore persists the managed executable's output as an
// append-only, date-partitioned text log.
//
// Layout:
//
//	<dir>/yatori_2026-10-16.log
//	<dir>/yatori_2026-10-15.log
//
// Each line is "[YYYY-MM-DD HH:MM:SS] <message>". Partitions are created
// lazily by the first append of a calendar day (host-local) and are only ever
// appended to, truncated, or deleted.
//
// Append swallows I/O failures (reporting them to the operational logger)
// so that a full disk can never interrupt the process being observed.
// All other operations return errors to their caller.
package logstore

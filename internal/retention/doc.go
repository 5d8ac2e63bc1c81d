// Package retention prunes old log partitions on a cron schedule while the
// runner is active.
//
// Schedules use the standard five-field form ("0 3 * * *"). Start performs
// one prune immediately so that a long-stopped runner catches up on start.
package retention

// Package scheduler fires registered cron triggers through a bounded worker
// pool.
//
// Triggers are registered by name and upserted: re-adding a name replaces the
// previous definition. Firing computes next-run times from the trigger's own
// cron spec (including a CRON_TZ prefix when present) so wall-clock times
// survive DST transitions and host restarts; nothing is derived from "last
// run plus interval".
package scheduler

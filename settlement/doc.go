// Package settlement contains the detached settlement worker pool and the
// queue that feeds it.
//
// Each task moves through scheduled -> waiting -> settling -> done, or
// skipped when the record is gone by the time the task runs. Settlement is
// best-effort: tasks are never retried and never report back to the request
// that scheduled them.
package settlement

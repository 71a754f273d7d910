/*
Package task implements the round-robin check loop that a Monitor assigns a
bounded set of services to.

	┌────────────────────── TASK ROUND LOOP ──────────────────────┐
	│  for each slot in round order:                                │
	│    Check()  ->  update failure_counter, status                │
	│    notify() on OK-after-FAIL or hard-failure-after-OK          │
	│    soft failure -> fast retry this slot before moving on       │
	│  sleep check_every_seconds - elapsed, or warn and continue      │
	└──────────────────────────────────────────────────────────────┘

A Task holds the only mutable state a Service lacks: the consecutive-failure
counter and the previous/current status, keyed by slot rather than by
service identity, since a Task owns exactly one slot per assigned service.
*/
package task

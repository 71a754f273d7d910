/*
Package storage persists services, downtime intervals, SLA rows, and
consolidation watermarks behind the Store interface, and implements the
non-transactional self-healing UpdateStatus protocol the monitoring engine
depends on.

# The UpdateStatus protocol

The store is assumed non-transactional: the service row and its downtime
row cannot be written atomically, so every implementation follows the same
state table, tolerating a crash between the two writes and healing it on
the next call for that service:

	db not persisted yet:
	    insert service (status=OK)
	    reported == FAIL -> insert an open downtime
	db_status == reported:
	    # no transition, but reconcile a half-written previous call
	    reported == OK   and an open downtime exists -> close it
	    reported == FAIL and no open downtime exists -> insert one
	db_status != reported:
	    set service.status = reported
	    reported == FAIL -> insert an open downtime (if none)
	    reported == OK   -> close the open downtime (if any)

This preserves the invariant that at most one downtime row per service has
down_end_date == 0 at any time, even across process crashes, because both
the "no transition" and the "transition" branches run the same reconcile
logic -- a transition IS just a reconcile where the stored status also
changes.

# Backends

BoltStore is an embedded, single-binary-friendly implementation: one
bucket per collection (uptime, uptime_history,
daily/weekly/monthly_uptime, consolidation_state, instance_state), JSON
values, and a secondary uptime_idx bucket mapping a service's identity
tuple to its generated id -- because BoltDB has no native secondary index.
Two buckets are never touched inside one transaction when the protocol
calls for two separate writes, so the self-healing branches above are
genuinely exercised, not merely simulated.

MongoStore is the reference backend (storage.backend: MongoStorage),
writing to the uptime / uptime_history / *_uptime / consolidation_state /
instance_state collections with the required indexes.

Both implementations keep a process-local cache mapping a service's
identity tuple to its backend-assigned id (a side mapping keyed by
service identity, not an in-memory field bolted onto the service value). A write
that discovers the cached id is stale invalidates the cache entry so the
next UpdateStatus call re-resolves it from the backend.

# SLA computation

ClipDowntime and SLAForDowntimes implement the window-clipping
arithmetic: a downtime's [down_start, down_end) is clipped against
[windowStart, windowStart+windowDuration), down_end == 0 is treated as
"still open at window end", and the total clipped time is clamped to the
window length before being converted to a percentage. Package
pkg/consolidation calls these directly after fetching the overlapping
downtimes from FindDowntimes.
*/
package storage

/*
Package instancelock implements the single-active-instance election
built on a heartbeat row in the Store that at most one
daemon process can keep fresh at a time.

A Lock first tries to become active by calling Store.Heartbeat with
InactiveDuring as the staleness threshold; a conditional update that only
succeeds if no other instance has touched the row within that window (or
the row does not exist yet). Losing that race means another instance is
alive, so the Lock sleeps Alive seconds and retries.

Once active, the Lock calls the caller's onActive callback and starts a
ticking heartbeat every Alive seconds, now with Alive itself as the
staleness threshold (its own previous beat is at least Alive old by then).
A standby instance keeps using InactiveDuring, so it can take over only
once InactiveDuring has passed since our last successful beat. The first
failed heartbeat is fatal to this Lock: it
calls onLoss and returns, leaving it to the caller (typically the Server)
to stop the Monitor and Consolidations and exit the process -- a
deliberately bounded, joinable shutdown path rather than force-killing
the process.
*/
package instancelock

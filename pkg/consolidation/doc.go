/*
Package consolidation implements the two long-running consolidation
workers of this daemon.

SLA consolidates downtime history into daily/weekly/monthly SLA rows. It
keeps three durable watermarks (one per period kind), each naming the
start of the next period not yet consolidated. An iteration consolidates
every period whose watermark has been reached, upserting a row per
service (idempotent on the (service, period_start) key) and
advancing the watermark only when the whole period succeeds -- a failure
anywhere leaves the watermark untouched so the entire period retries
wholesale on the next iteration; watermarks never decrease.

Month arithmetic advances by exactly one calendar month from a
first-of-month timestamp; week arithmetic anchors every period on the
Monday of the ISO week containing the watermark. Both run through
pkg/consolidation's internal period.go helpers, kept unexported because
nothing outside this package needs them.

Status is the simpler of the two: every WaitBetweenBatch it recomputes
each matched service's public status (OK unless an open downtime has run
for at least DownTimeDuration) and writes only on change, suppressing
short flaps from whatever external status page reads status_public.
*/
package consolidation

/*
Package health implements the low-level connectivity probes that pkg/service
wraps per probe kind.

	┌────────────── CHECK SYSTEM ──────────────┐
	│  Checker interface                        │
	│    Check(ctx) Result                      │
	│                                            │
	│  HTTPChecker                              │
	│    GET a URL, accept a status-code range  │
	│    custom headers, custom timeout         │
	└────────────────────────────────────────────┘

A Checker reports only whether a single attempt succeeded; it has no memory
of previous attempts. The attempt counter and soft/hard failure bookkeeping
that decides whether a single failed Check should actually be reported
as the service's recorded status lives in pkg/task, one layer up.
*/
package health

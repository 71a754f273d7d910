/*
Package service defines the probe contract the monitoring engine depends on
and its four concrete variants.

	┌───────────────── SERVICE VARIANTS ─────────────────┐
	│  Service interface                                   │
	│    Kind() / Category() / Key() / Equal() / Check()   │
	│                                                        │
	│  HTTPIngress   (namespace, url)        net/http       │
	│  Database      (name)                  mongo-driver   │
	│  Cluster       (name, context)         client-go      │
	│  Search        (name)                  net/http       │
	└────────────────────────────────────────────────────────┘

A Service is value-like: Equal compares identity fields only, never mutable
check state — there is none here. The consecutive-failure counter, the
previous/new status pair, and the soft/hard-failure decision all live one
layer up, in pkg/task, which owns exactly one Service per monitored slot.
This keeps a Service safe to recreate on every provider sync without losing
track of an in-progress failure streak (the streak lives in the Task's
slot for that service, not on the Service).
*/
package service

/*
Package monitor implements the dynamic, thread-safe scheduler at the heart
of this daemon: it bin-packs services reported by any number of providers
onto a pool of pkg/task.Task workers, dedups across providers, and starts
or stops those Tasks as services come and go.

	┌─────────────────────── MONITOR ───────────────────────┐
	│  providers: map[string][]Service   (one bucket per     │
	│             provider name, for RemoveProvider/Delegation)│
	│  tasks:     []*task.Task           (bin-packed)         │
	│  mu         sync.Mutex             (guards both above)  │
	└─────────────────────────────────────────────────────────┘

Add dedups a service across every provider bucket before bin-packing: the
same HTTPIngress discovered by two ingress-watcher instances becomes one
Task membership, never two. Remove/RemoveProvider/RemoveDelegation reap any
Task that becomes empty. Lock order is always Monitor -> Task, never the
reverse, so a Remove that must reach into a Task's own mutex can never
deadlock against a Task's round loop (which never touches the Monitor
mutex at all).
*/
package monitor

package monitor

import (
	"sync"
	"time"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/metrics"
	"github.com/mickybart/uptimed/pkg/service"
	"github.com/mickybart/uptimed/pkg/task"
)

// Predicate decides, given a service and an opaque extra value, whether
// RemoveDelegation should remove it -- the mechanism an ingress provider
// uses to drop "stale" services it cannot otherwise distinguish from a
// modification. This is a type alias, not a defined type, so a plain
// func(service.Service, any) bool literal satisfies it without a
// conversion -- that keeps pkg/provider's Target interface decoupled
// from this package.
type Predicate = func(svc service.Service, extra any) bool

// Config bundles the tunables every spawned Task receives.
type Config struct {
	MaxServices           int
	CheckEverySeconds     time.Duration
	FastRetryEverySeconds time.Duration
	AttemptBeforeHardFail int
	Notify                task.NotifyFunc
}

// Monitor owns the provider->services map and the pool of Tasks those
// services are bin-packed onto. All mutating operations run under mu;
// probe execution inside a Task never touches mu (lock order
// Monitor -> Task, never the reverse).
type Monitor struct {
	cfg Config

	mu        sync.Mutex
	providers map[string][]service.Service
	tasks     []*task.Task
	running   bool
	nextIndex int
}

// New creates an empty, stopped Monitor.
func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg, providers: make(map[string][]service.Service)}
}

// Start marks the Monitor running and starts every existing Task.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	for _, t := range m.tasks {
		t.Start()
	}
	compLog := log.WithComponent("monitor")
	compLog.Info().Int("tasks", len(m.tasks)).Msg("monitor started")
}

// Stop signals every Task to stop and waits for each to finish its
// current round before returning.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	tasks := append([]*task.Task(nil), m.tasks...)
	m.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	compLog := log.WithComponent("monitor")
	compLog.Info().Msg("monitor stopped")
}

func containsEqual(services []service.Service, svc service.Service) bool {
	for _, s := range services {
		if s.Equal(svc) {
			return true
		}
	}
	return false
}

// Add registers svc under provider, deduplicating across every provider
// bucket, then bin-packs it onto the first Task
// with spare capacity or spawns a new one.
func (m *Monitor) Add(svc service.Service, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bucket := range m.providers {
		if containsEqual(bucket, svc) {
			return
		}
	}

	m.providers[provider] = append(m.providers[provider], svc)

	for _, t := range m.tasks {
		if t.Add(svc) {
			metrics.ServicesTotal.WithLabelValues(string(svc.Kind())).Inc()
			return
		}
	}

	t := task.New(m.nextIndex, task.Config{
		MaxServices:           m.cfg.MaxServices,
		CheckEverySeconds:     m.cfg.CheckEverySeconds,
		FastRetryEverySeconds: m.cfg.FastRetryEverySeconds,
		AttemptBeforeHardFail: m.cfg.AttemptBeforeHardFail,
		Notify:                m.cfg.Notify,
	})
	m.nextIndex++
	t.Add(svc)
	m.tasks = append(m.tasks, t)
	metrics.ServicesTotal.WithLabelValues(string(svc.Kind())).Inc()
	metrics.TasksTotal.Set(float64(len(m.tasks)))

	if m.running {
		t.Start()
	}
}

// removeFromTasks finds the Task holding svc, removes it, and reaps the
// Task if it becomes empty. Must be called with mu held.
func (m *Monitor) removeFromTasks(svc service.Service) {
	for i, t := range m.tasks {
		if !t.Remove(svc) {
			continue
		}
		if t.Empty() {
			t.Stop()
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			metrics.TasksTotal.Set(float64(len(m.tasks)))
		}
		metrics.ServicesTotal.WithLabelValues(string(svc.Kind())).Dec()
		return
	}
}

// Remove drops svc from provider's bucket, if present, and from whichever
// Task holds it.
func (m *Monitor) Remove(svc service.Service, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.providers[provider]
	for i, s := range bucket {
		if s.Equal(svc) {
			m.providers[provider] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}

	m.removeFromTasks(svc)
}

// RemoveProvider removes every service belonging to provider, reaping any
// Task that becomes empty.
func (m *Monitor) RemoveProvider(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.providers[provider]
	delete(m.providers, provider)

	for _, svc := range bucket {
		m.removeFromTasks(svc)
	}
}

// RemoveDelegation removes every service in provider's bucket for which
// predicate returns true, iterating over a stable snapshot of that bucket
// so the predicate never observes a bucket mutating under it.
func (m *Monitor) RemoveDelegation(predicate Predicate, extra any, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := append([]service.Service(nil), m.providers[provider]...)
	for _, svc := range snapshot {
		if !predicate(svc, extra) {
			continue
		}
		bucket := m.providers[provider]
		for i, s := range bucket {
			if s.Equal(svc) {
				m.providers[provider] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		m.removeFromTasks(svc)
	}
}

// Running reports whether Start has been called without a later Stop.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// TaskCount returns the current number of Tasks, used by tests asserting
// bin-pack behavior.
func (m *Monitor) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// ServiceCount returns the total number of services across every Task.
func (m *Monitor) ServiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, t := range m.tasks {
		n += t.Len()
	}
	return n
}

// TaskSizes returns the current membership count of every Task, in
// creation order.
func (m *Monitor) TaskSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.tasks))
	for i, t := range m.tasks {
		sizes[i] = t.Len()
	}
	return sizes
}

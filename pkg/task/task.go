package task

import (
	"context"
	"sync"
	"time"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/metrics"
	"github.com/mickybart/uptimed/pkg/service"
)

// NotifyFunc is called on a status transition worth persisting. It returns
// false to ask the Task to forget the current status and re-report it on
// the next round (the transient-storage-error retry path).
type NotifyFunc func(svc service.Service, status service.Status, extra map[string]any) bool

const sleepQuantum = 5 * time.Second

// slot pairs an immutable Service with the mutable check-state the round
// loop tracks for it: the consecutive-failure counter and the previous/
// current status. Keeping this off the Service keeps Service value-like.
type slot struct {
	svc               service.Service
	failureCounter    int
	status            *service.Status
	attemptBeforeFail int
}

func (s *slot) isSoftFailure() bool {
	return s.failureCounter > 0 && !s.isHardFailure()
}

func (s *slot) isHardFailure() bool {
	return s.failureCounter >= s.attemptBeforeFail
}

// Task owns a bounded group of services, round-robin checking each in turn
// and fast-retrying on a soft failure. A Task is created and controlled
// only by a Monitor.
type Task struct {
	index                 int
	maxServices           int
	checkEvery            time.Duration
	fastRetryEvery        time.Duration
	attemptBeforeHardFail int
	notify                NotifyFunc

	mu      sync.Mutex
	slots   []*slot
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// Config bundles the tunables a Monitor hands every Task it spawns.
type Config struct {
	MaxServices           int
	CheckEverySeconds     time.Duration
	FastRetryEverySeconds time.Duration
	AttemptBeforeHardFail int
	Notify                NotifyFunc
}

// New creates a Task with no services yet.
func New(index int, cfg Config) *Task {
	if cfg.AttemptBeforeHardFail <= 0 {
		cfg.AttemptBeforeHardFail = 3
	}
	return &Task{
		index:                 index,
		maxServices:           cfg.MaxServices,
		checkEvery:            cfg.CheckEverySeconds,
		fastRetryEvery:        cfg.FastRetryEverySeconds,
		attemptBeforeHardFail: cfg.AttemptBeforeHardFail,
		notify:                cfg.Notify,
	}
}

// Add appends svc if there is spare capacity.
func (t *Task) Add(svc service.Service) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.slots) >= t.maxServices {
		return false
	}

	t.slots = append(t.slots, &slot{svc: svc, attemptBeforeFail: t.attemptBeforeHardFail})
	return true
}

// Remove drops svc (by equality) if present.
func (t *Task) Remove(svc service.Service) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.slots {
		if s.svc.Equal(svc) {
			t.slots = append(t.slots[:i], t.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Empty reports whether the Task has no services left.
func (t *Task) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) == 0
}

// Len returns the current number of services this Task holds.
func (t *Task) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

func (t *Task) snapshot() []*slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// Start begins the round loop in a new goroutine.
func (t *Task) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	go t.run()
}

// Stop signals the round loop to stop and waits for it to finish its
// current round.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stopCh := t.stopCh
	doneCh := t.doneCh
	t.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (t *Task) stopRequested() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

func (t *Task) run() {
	taskLog := log.WithTaskIndex(t.index)
	taskLog.Info().Msg("starting task")
	defer close(t.doneCh)

	for !t.stopRequested() {
		start := time.Now()

		for _, s := range t.snapshot() {
			if t.stopRequested() {
				break
			}
			t.checkService(s)
		}

		elapsed := time.Since(start)
		sleepFor := t.checkEvery - elapsed
		if sleepFor < 0 {
			taskLog.Warn().
				Dur("elapsed", elapsed).
				Dur("check_every", t.checkEvery).
				Msg("round took longer than check_every_seconds, continuing immediately")
			continue
		}

		sleepCooperative(sleepFor, t.stopCh)
	}

	taskLog.Info().Msg("task stopped")
}

func (t *Task) checkService(s *slot) {
	timer := metrics.NewTimer()
	result := s.svc.Check(context.Background())
	timer.ObserveDurationVec(metrics.CheckDuration, string(s.svc.Kind()))
	metrics.ChecksTotal.WithLabelValues(string(s.svc.Kind()), result.Status.String()).Inc()

	if result.Status == service.FAIL {
		s.failureCounter++
	} else if s.failureCounter != 0 {
		s.failureCounter = 0
	}

	previous := s.status

	if result.Status == service.OK || s.isSoftFailure() {
		ok := service.OK
		s.status = &ok
	} else {
		fail := service.FAIL
		s.status = &fail
	}

	notifyNeeded := false
	switch {
	case result.Status == service.OK && (previous == nil || *previous == service.FAIL):
		notifyNeeded = true
	case s.isHardFailure() && (previous == nil || *previous == service.OK):
		notifyNeeded = true
	}

	if notifyNeeded && t.notify != nil {
		if !t.notify(s.svc, result.Status, result.Extra) {
			metrics.NotifyFailuresTotal.Inc()
			s.status = nil
		}
	}

	if s.isSoftFailure() {
		taskLog := log.WithTaskIndex(t.index)
		taskLog.Warn().
			Int("failure_counter", s.failureCounter).Str("service", s.svc.String()).Msg("soft failure")
		sleepCooperative(t.fastRetryEvery, t.stopCh)
		t.checkService(s)
	}
}

func sleepCooperative(d time.Duration, stopCh <-chan struct{}) {
	if d <= 0 {
		return
	}
	for d > 0 {
		chunk := d
		if chunk > sleepQuantum {
			chunk = sleepQuantum
		}
		timer := time.NewTimer(chunk)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		d -= chunk
	}
}

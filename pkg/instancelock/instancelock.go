package instancelock

import (
	"context"
	"sync"
	"time"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/metrics"
	"github.com/mickybart/uptimed/pkg/storage"
)

const sleepQuantum = 5 * time.Second

// Heartbeater is the subset of storage.Store this package depends on,
// kept narrow so tests can substitute a minimal fake.
type Heartbeater interface {
	Heartbeat(ctx context.Context, olderThan time.Duration) (bool, error)
}

// Lock holds the single-active-instance election state.
type Lock struct {
	store          Heartbeater
	alive          time.Duration
	inactiveDuring time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	active  bool
	running bool
}

// New constructs a Lock with the default cadence applied if zero values
// are passed (alive=60s, inactiveDuring=180s).
func New(store Heartbeater, alive, inactiveDuring time.Duration) *Lock {
	if alive <= 0 {
		alive = 60 * time.Second
	}
	if inactiveDuring <= 0 {
		inactiveDuring = 3 * alive
	}
	return &Lock{store: store, alive: alive, inactiveDuring: inactiveDuring}
}

// IsActive reports whether this Lock currently believes it holds the
// election.
func (l *Lock) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Run tries to become the active instance, retrying every Alive seconds
// until it wins or Stop is called. Once active it invokes onActive, then
// heartbeats every Alive seconds until the first failure, at which point
// it invokes onLoss and returns. Run blocks until it returns or Stop is
// called; it is meant to be launched in its own goroutine.
func (l *Lock) Run(ctx context.Context, onActive func(), onLoss func()) {
	l.mu.Lock()
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()
	defer close(l.doneCh)

	lockLog := log.WithComponent("instancelock")
	lockLog.Info().Msg("trying to become the active instance")

	for {
		won, err := l.store.Heartbeat(ctx, l.inactiveDuring)
		if err != nil {
			lockLog.Warn().Err(err).Msg("heartbeat check failed, retrying")
		}
		if won {
			break
		}
		if l.stopRequested() {
			return
		}
		sleepCooperative(l.alive, l.stopCh)
		if l.stopRequested() {
			return
		}
	}

	l.mu.Lock()
	l.active = true
	l.mu.Unlock()
	metrics.InstanceIsActive.Set(1)
	lockLog.Info().Msg("became the active instance")

	if onActive != nil {
		onActive()
	}

	for {
		sleepCooperative(l.alive, l.stopCh)
		if l.stopRequested() {
			break
		}
		ok, err := l.store.Heartbeat(ctx, l.alive)
		if err != nil {
			lockLog.Error().Err(err).Msg("heartbeat failed")
		}
		if !ok {
			lockLog.Error().Msg("lost the active instance heartbeat, stopping")
			break
		}
	}

	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
	metrics.InstanceIsActive.Set(0)

	if onLoss != nil {
		onLoss()
	}
}

// Stop signals Run to stop at its next cooperative checkpoint.
func (l *Lock) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (l *Lock) stopRequested() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
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

var _ Heartbeater = (*storage.BoltStore)(nil)

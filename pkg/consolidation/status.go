package consolidation

import (
	"context"
	"sync"
	"time"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/service"
	"github.com/mickybart/uptimed/pkg/storage"
)

// Status is the public-status refresh worker: every
// WaitBetweenBatch, it refreshes each matched service's public status
// based on whether an open downtime has been running for at least
// DownTimeDuration, writing only on change.
type Status struct {
	store            storage.Store
	filter           storage.ServiceFilter
	downTimeDuration time.Duration
	waitBetweenBatch time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	now func() time.Time
}

// NewStatus constructs a Status worker. Defaults: downTimeDuration=600s,
// waitBetweenBatch=60s.
func NewStatus(store storage.Store, filter storage.ServiceFilter, downTimeDuration, waitBetweenBatch time.Duration) *Status {
	if downTimeDuration <= 0 {
		downTimeDuration = 600 * time.Second
	}
	if waitBetweenBatch <= 0 {
		waitBetweenBatch = 60 * time.Second
	}
	return &Status{store: store, filter: filter, downTimeDuration: downTimeDuration, waitBetweenBatch: waitBetweenBatch, now: time.Now}
}

func (s *Status) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

func (s *Status) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Status) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Status) run() {
	statusLog := log.WithComponent("consolidation-status")
	statusLog.Info().Msg("starting status consolidation")
	defer close(s.doneCh)

	for !s.stopRequested() {
		start := s.now()
		s.computeStatus(context.Background())
		elapsed := s.now().Sub(start)

		sleepTime := s.waitBetweenBatch - elapsed
		if sleepTime < 0 {
			sleepTime = s.waitBetweenBatch
		}
		sleepCooperative(sleepTime, s.stopCh)
	}

	statusLog.Info().Msg("status consolidation stopped")
}

// computeStatus applies the public-status decision rule per matched service.
func (s *Status) computeStatus(ctx context.Context) {
	statusLog := log.WithComponent("consolidation-status")
	services, err := s.store.AllServices(ctx, s.filter)
	if err != nil {
		statusLog.Warn().Err(err).Msg("status consolidation: list services failed")
		return
	}

	threshold := s.now().Add(-s.downTimeDuration).Unix()

	for _, svc := range services {
		open, err := s.store.OpenDowntime(ctx, svc.ID)
		if err != nil {
			statusLog.Warn().Str("service", svc.ID).Err(err).Msg("status consolidation: open downtime lookup failed")
			continue
		}

		public := service.OK
		if open != nil && open.DownStart <= threshold {
			public = service.FAIL
		}

		if err := s.store.SetStatusPublic(ctx, svc.ID, public); err != nil {
			statusLog.Warn().Str("service", svc.ID).Err(err).Msg("status consolidation: write failed")
		}
	}
}

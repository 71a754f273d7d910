package consolidation

import (
	"context"
	"sync"
	"time"

	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/metrics"
	"github.com/mickybart/uptimed/pkg/storage"
)

const sleepQuantum = 5 * time.Second

// SLA is the long-running consolidation worker: it reads three
// durable watermarks at startup and, every iteration, consolidates any
// period whose watermark has been reached into a daily/weekly/monthly SLA
// row per service, advancing the watermark only on success.
type SLA struct {
	store            storage.Store
	waitBetweenBatch time.Duration

	mu                                 sync.Mutex
	nextDaily, nextWeekly, nextMonthly int64

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	now func() time.Time
}

// NewSLA loads watermarks from store, defaulting to the start of the
// current day/ISO-week/month if the store has none yet.
func NewSLA(ctx context.Context, store storage.Store, waitBetweenBatch time.Duration) (*SLA, error) {
	if waitBetweenBatch <= 0 {
		waitBetweenBatch = 300 * time.Second
	}
	s := &SLA{store: store, waitBetweenBatch: waitBetweenBatch, now: time.Now}

	daily, weekly, monthly := initialWatermarks(s.now())

	if got, ok, err := store.Watermark(ctx, storage.Daily); err != nil {
		return nil, err
	} else if ok {
		daily = got
	}
	if got, ok, err := store.Watermark(ctx, storage.Weekly); err != nil {
		return nil, err
	} else if ok {
		weekly = got
	}
	if got, ok, err := store.Watermark(ctx, storage.Monthly); err != nil {
		return nil, err
	} else if ok {
		monthly = got
	}

	s.nextDaily, s.nextWeekly, s.nextMonthly = daily, weekly, monthly
	return s, nil
}

// Start begins the consolidation loop in a new goroutine.
func (s *SLA) Start() {
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

// Stop signals the loop to stop and waits for the current iteration to
// finish.
func (s *SLA) Stop() {
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

func (s *SLA) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *SLA) watermarks() (daily, weekly, monthly int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDaily, s.nextWeekly, s.nextMonthly
}

func (s *SLA) run() {
	slaLog := log.WithComponent("consolidation-sla")
	slaLog.Info().Msg("starting sla consolidation")
	defer close(s.doneCh)

	for !s.stopRequested() {
		start := s.now().Unix()

		daily, weekly, monthly := s.watermarks()

		if start >= daily {
			s.computePeriod(context.Background(), storage.Daily, previousDaily(daily))
		}
		if s.stopRequested() {
			break
		}

		daily, weekly, monthly = s.watermarks()
		if start >= weekly {
			s.computePeriod(context.Background(), storage.Weekly, previousWeekly(weekly))
		}
		if s.stopRequested() {
			break
		}

		daily, weekly, monthly = s.watermarks()
		if start >= monthly {
			s.computePeriod(context.Background(), storage.Monthly, previousMonthly(monthly))
		}

		end := s.now().Unix()
		daily, weekly, monthly = s.watermarks()
		nextEvent := daily
		if weekly < nextEvent {
			nextEvent = weekly
		}
		if monthly < nextEvent {
			nextEvent = monthly
		}

		sleepTime := s.waitBetweenBatch
		if end < nextEvent {
			if remaining := time.Duration(nextEvent-end) * time.Second; remaining > sleepTime {
				sleepTime = remaining
			}
		}

		sleepCooperative(sleepTime, s.stopCh)
	}

	slaLog.Info().Msg("sla consolidation stopped")
}

// computePeriod consolidates a single daily/weekly/monthly period across
// every known service, upserting (idempotent) SLA rows and
// advancing the watermark only when every service succeeded.
func (s *SLA) computePeriod(ctx context.Context, kind storage.PeriodKind, periodStart int64) {
	periodLog := log.WithComponent("consolidation-sla")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ConsolidationDuration, string(kind))

	duration := periodDuration(kind, periodStart)

	services, err := s.store.AllServices(ctx, storage.ServiceFilter{})
	if err != nil {
		periodLog.Warn().Str("kind", string(kind)).Int64("period_start", periodStart).Err(err).Msg("consolidation: list services failed")
		return
	}

	var lastSLA float64
	for _, svc := range services {
		downtimes, err := s.store.FindDowntimes(ctx, svc.ID, periodStart, duration)
		if err != nil {
			periodLog.Warn().Str("kind", string(kind)).Str("service", svc.ID).Err(err).Msg("consolidation: find downtimes failed")
			return
		}
		sla := storage.SLAForDowntimes(downtimes, periodStart, duration)
		if err := s.store.UpsertSLA(ctx, kind, svc.ID, periodStart, sla); err != nil {
			periodLog.Warn().Str("kind", string(kind)).Str("service", svc.ID).Err(err).Msg("consolidation: upsert sla failed")
			return
		}
		lastSLA = sla
	}

	next := advance(kind, s.watermarkFor(kind))
	if err := s.store.SetWatermark(ctx, kind, next); err != nil {
		periodLog.Warn().Str("kind", string(kind)).Err(err).Msg("consolidation: advance watermark failed")
		return
	}

	s.setWatermark(kind, next)
	metrics.ConsolidationWatermark.WithLabelValues(string(kind)).Set(float64(next))
	metrics.SLAPercent.WithLabelValues(string(kind)).Set(lastSLA)
	periodLog.Info().Str("kind", string(kind)).Int64("period_start", periodStart).Msg("consolidation: period done")
}

func (s *SLA) watermarkFor(kind storage.PeriodKind) int64 {
	daily, weekly, monthly := s.watermarks()
	switch kind {
	case storage.Daily:
		return daily
	case storage.Weekly:
		return weekly
	default:
		return monthly
	}
}

func (s *SLA) setWatermark(kind storage.PeriodKind, next int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case storage.Daily:
		s.nextDaily = next
	case storage.Weekly:
		s.nextWeekly = next
	case storage.Monthly:
		s.nextMonthly = next
	}
}

func periodDuration(kind storage.PeriodKind, periodStart int64) int64 {
	switch kind {
	case storage.Daily:
		return daySeconds
	case storage.Weekly:
		return weekSeconds
	default:
		return monthDuration(periodStart)
	}
}

func advance(kind storage.PeriodKind, current int64) int64 {
	switch kind {
	case storage.Daily:
		return nextDaily(current)
	case storage.Weekly:
		return nextWeekly(current)
	default:
		return nextMonthly(current)
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

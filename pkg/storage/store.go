package storage

import (
	"context"
	"time"

	"github.com/mickybart/uptimed/pkg/service"
)

// PeriodKind names a consolidation granularity.
type PeriodKind string

const (
	Daily   PeriodKind = "daily"
	Weekly  PeriodKind = "weekly"
	Monthly PeriodKind = "monthly"
)

// ServiceRecord is the persisted view of a monitored service.
type ServiceRecord struct {
	ID           string
	Kind         service.Kind
	Category     string
	Namespace    string
	Description  string
	Status       service.Status
	StatusPublic *service.Status
}

// DowntimeRecord is a single (service, interval) row. DownEnd == 0 means the
// downtime is still open; at most one open row exists per service at any
// time.
type DowntimeRecord struct {
	ID        string
	ServiceID string
	DownStart int64
	DownEnd   int64
	Extra     map[string]any
}

// Open reports whether the downtime has not yet been closed.
func (d DowntimeRecord) Open() bool { return d.DownEnd == 0 }

// SLARecord is one upserted (service, period_start) -> sla row.
type SLARecord struct {
	ServiceID   string
	PeriodStart int64
	SLA         float64
}

// Watermark is the next period-start not yet consolidated for a PeriodKind.
type Watermark struct {
	Kind PeriodKind
	Next int64
}

// ServiceFilter narrows AllServices to a subset; a zero-value filter matches
// every service. Category/Kind are exact matches; both are optional.
type ServiceFilter struct {
	Category string
	Kind     service.Kind
}

// Store is the persistence contract the monitoring engine, the
// consolidation workers, and the instance lock depend on. Implementations
// are assumed non-transactional across the service row and the downtime
// row: UpdateStatus's self-healing protocol exists because of that
// assumption, not despite it.
type Store interface {
	// Ready reports whether the backend can be reached right now.
	Ready(ctx context.Context) bool

	// UpdateStatus persists a reported state transition for svc, following
	// the self-healing protocol described in package doc. It returns false
	// to tell the caller to retry this transition on the next probe round.
	UpdateStatus(ctx context.Context, svc service.Service, status service.Status, extra map[string]any) bool

	// AllServices returns every service row matching filter.
	AllServices(ctx context.Context, filter ServiceFilter) ([]ServiceRecord, error)

	// SetStatusPublic writes status on the service only if it differs from
	// the currently stored value (write-on-change).
	SetStatusPublic(ctx context.Context, serviceID string, status service.Status) error

	// OpenDowntime returns the current open downtime for a service, if any.
	OpenDowntime(ctx context.Context, serviceID string) (*DowntimeRecord, error)

	// FindDowntimes returns every downtime overlapping
	// [start, start+duration).
	FindDowntimes(ctx context.Context, serviceID string, start, duration int64) ([]DowntimeRecord, error)

	// Watermark reads the current watermark row for kind, or (0, false) if
	// it has never been written.
	Watermark(ctx context.Context, kind PeriodKind) (int64, bool, error)

	// SetWatermark durably advances the watermark for kind to next.
	SetWatermark(ctx context.Context, kind PeriodKind, next int64) error

	// UpsertSLA writes (or overwrites) the SLA row for (serviceID, periodStart).
	UpsertSLA(ctx context.Context, kind PeriodKind, serviceID string, periodStart int64, sla float64) error

	// SLA reads back a single previously-upserted row, used by the stats CLI
	// and by tests asserting idempotent consolidation.
	SLA(ctx context.Context, kind PeriodKind, serviceID string, periodStart int64) (float64, bool, error)

	// Heartbeat performs InstanceLock's conditional update: it sets the
	// singleton instance_state row's date to now only if the stored date is
	// <= now-olderThan (or the row does not exist yet, in which case it is
	// created). It reports whether this call won the update.
	Heartbeat(ctx context.Context, olderThan time.Duration) (bool, error)

	Close() error
}

// ClipDowntime computes the overlap between a downtime interval
// [start, end) (end == 0 meaning still open) and a window
// [windowStart, windowStart+windowDuration).
func ClipDowntime(start, end, windowStart, windowDuration int64) int64 {
	windowEnd := windowStart + windowDuration
	if end == 0 || end > windowEnd {
		end = windowEnd
	}
	clippedStart := start
	if clippedStart < windowStart {
		clippedStart = windowStart
	}
	if end <= clippedStart {
		return 0
	}
	return end - clippedStart
}

// SLAForDowntimes computes the SLA percentage over a pre-fetched set of
// overlapping downtimes: sum the clipped lengths, clamp to the window, and
// convert to a percentage.
func SLAForDowntimes(downtimes []DowntimeRecord, windowStart, windowDuration int64) float64 {
	var down int64
	for _, d := range downtimes {
		down += ClipDowntime(d.DownStart, d.DownEnd, windowStart, windowDuration)
	}
	if down > windowDuration {
		down = windowDuration
	}
	if windowDuration <= 0 {
		return 100
	}
	return 100 * (1 - float64(down)/float64(windowDuration))
}

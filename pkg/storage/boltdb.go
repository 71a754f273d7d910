package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mickybart/uptimed/pkg/service"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketServices   = []byte("uptime")
	bucketServiceIdx = []byte("uptime_idx")
	bucketHistory    = []byte("uptime_history")
	bucketDaily      = []byte("daily_uptime")
	bucketWeekly     = []byte("weekly_uptime")
	bucketMonthly    = []byte("monthly_uptime")
	bucketWatermark  = []byte("consolidation_state")
	bucketInstance   = []byte("instance_state")
)

func slaBucket(kind PeriodKind) []byte {
	switch kind {
	case Daily:
		return bucketDaily
	case Weekly:
		return bucketWeekly
	case Monthly:
		return bucketMonthly
	default:
		return nil
	}
}

// storedService is the JSON layout of a uptime bucket row, matching the
// MongoStore collection shape.
type storedService struct {
	ID           string         `json:"_id"`
	Kind         service.Kind   `json:"kind"`
	Category     string         `json:"category"`
	Namespace    string         `json:"ns,omitempty"`
	Description  string         `json:"description"`
	Status       service.Status `json:"status"`
	StatusPublic *int           `json:"status_public,omitempty"`
}

func (s storedService) record() ServiceRecord {
	rec := ServiceRecord{
		ID:          s.ID,
		Kind:        s.Kind,
		Category:    s.Category,
		Namespace:   s.Namespace,
		Description: s.Description,
		Status:      s.Status,
	}
	if s.StatusPublic != nil {
		st := service.Status(*s.StatusPublic)
		rec.StatusPublic = &st
	}
	return rec
}

// storedDowntime is the JSON layout of an uptime_history bucket row.
type storedDowntime struct {
	ID            string         `json:"_id"`
	ServiceID     string         `json:"_id_uptime"`
	DownStartDate int64          `json:"down_start_date"`
	DownEndDate   int64          `json:"down_end_date"`
	Extra         map[string]any `json:"extra,omitempty"`
}

func (d storedDowntime) record() DowntimeRecord {
	return DowntimeRecord{
		ID:        d.ID,
		ServiceID: d.ServiceID,
		DownStart: d.DownStartDate,
		DownEnd:   d.DownEndDate,
		Extra:     d.Extra,
	}
}

// storedSLA is the JSON layout of a daily/weekly/monthly_uptime bucket row.
type storedSLA struct {
	ServiceID string  `json:"_id_uptime"`
	Date      int64   `json:"date"`
	SLA       float64 `json:"sla"`
}

// storedInstance is the JSON layout of the instance_state singleton row.
type storedInstance struct {
	ID   string `json:"_id"`
	Date int64  `json:"date"`
}

const instanceKey = "instance"

// BoltStore implements Store on an embedded BoltDB file, one bucket per
// Mongo-style collection. The uptime row and its open uptime_history row
// are written in separate transactions, never one -- UpdateStatus's
// self-healing protocol is exercised for real, not merely emulated.
type BoltStore struct {
	db *bolt.DB

	mu      sync.Mutex
	idCache map[string]string // "<kind>|<key>" -> service id
}

// NewBoltStore opens (creating if absent) a BoltDB file under dataDir and
// ensures every required bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "uptimed.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	buckets := [][]byte{
		bucketServices, bucketServiceIdx, bucketHistory,
		bucketDaily, bucketWeekly, bucketMonthly,
		bucketWatermark, bucketInstance,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, idCache: make(map[string]string)}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Ready(ctx context.Context) bool {
	err := s.db.View(func(tx *bolt.Tx) error {
		return nil
	})
	return err == nil
}

func serviceKey(svc service.Service) string {
	return string(svc.Kind()) + "|" + svc.Key()
}

func (s *BoltStore) cachedID(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idCache[key]
	return id, ok
}

func (s *BoltStore) cacheID(key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idCache[key] = id
}

func (s *BoltStore) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idCache, key)
}

// resolveID returns the stored service id for svc, querying the secondary
// index bucket on a cache miss. ok is false if the service has never been
// persisted.
func (s *BoltStore) resolveID(tx *bolt.Tx, svc service.Service) (id string, ok bool) {
	key := serviceKey(svc)
	if id, hit := s.cachedID(key); hit {
		return id, true
	}

	idx := tx.Bucket(bucketServiceIdx)
	raw := idx.Get([]byte(key))
	if raw == nil {
		return "", false
	}
	id = string(raw)
	s.cacheID(key, id)
	return id, true
}

func getOpenDowntime(b *bolt.Bucket, serviceID string) (*storedDowntime, []byte, error) {
	var found *storedDowntime
	var foundKey []byte
	err := b.ForEach(func(k, v []byte) error {
		var d storedDowntime
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}
		if d.ServiceID == serviceID && d.DownEndDate == 0 {
			dCopy := d
			found = &dCopy
			foundKey = append([]byte(nil), k...)
		}
		return nil
	})
	return found, foundKey, err
}

// insertDowntime opens a new downtime row for serviceID.
func (s *BoltStore) insertDowntime(serviceID string, now int64, extra map[string]any) error {
	dt := storedDowntime{ID: uuid.NewString(), ServiceID: serviceID, DownStartDate: now, Extra: extra}
	data, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).Put([]byte(dt.ID), data)
	})
}

// closeDowntime stamps the open downtime row at rowKey with an end date.
func (s *BoltStore) closeDowntime(rowKey []byte, dt *storedDowntime, now int64) error {
	dt.DownEndDate = now
	data, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).Put(rowKey, data)
	})
}

func (s *BoltStore) openDowntimeRow(serviceID string) (*storedDowntime, []byte, error) {
	var dt *storedDowntime
	var rowKey []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		dt, rowKey, err = getOpenDowntime(tx.Bucket(bucketHistory), serviceID)
		return err
	})
	return dt, rowKey, err
}

// UpdateStatus implements the self-healing status protocol. See package
// doc for the full state table. The service row and the downtime row are
// written in separate transactions on purpose: a crash between the two
// leaves the same half-written state a non-transactional backend would,
// and the reconcile branches heal it on the next call.
func (s *BoltStore) UpdateStatus(ctx context.Context, svc service.Service, status service.Status, extra map[string]any) bool {
	key := serviceKey(svc)
	now := time.Now().Unix()

	var id string
	var known bool
	if err := s.db.View(func(tx *bolt.Tx) error {
		id, known = s.resolveID(tx, svc)
		return nil
	}); err != nil {
		return false
	}

	if !known {
		id = uuid.NewString()
		rec := storedService{
			ID:          id,
			Kind:        svc.Kind(),
			Category:    svc.Category(),
			Description: svc.String(),
			Status:      service.OK,
		}
		if ing, ok := svc.(*service.HTTPIngress); ok {
			rec.Namespace = ing.Namespace
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return false
		}
		err = s.db.Update(func(tx *bolt.Tx) error {
			if err := tx.Bucket(bucketServices).Put([]byte(id), data); err != nil {
				return err
			}
			return tx.Bucket(bucketServiceIdx).Put([]byte(key), []byte(id))
		})
		if err != nil {
			return false
		}
		s.cacheID(key, id)

		if status == service.FAIL {
			return s.insertDowntime(id, now, extra) == nil
		}
		return true
	}

	var rec storedService
	var dangling bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketServices).Get([]byte(id))
		if raw == nil {
			dangling = true
			return nil
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return false
	}
	if dangling {
		// id index pointed at a row that no longer exists: heal by
		// forgetting the cached id and retrying as a fresh insert next
		// round.
		s.invalidate(key)
		return false
	}

	openDT, openKey, err := s.openDowntimeRow(id)
	if err != nil {
		return false
	}

	if rec.Status == status {
		// No transition, but reconcile a half-written previous call.
		if status == service.OK && openDT != nil {
			return s.closeDowntime(openKey, openDT, now) == nil
		}
		if status == service.FAIL && openDT == nil {
			return s.insertDowntime(id, now, extra) == nil
		}
		return true
	}

	rec.Status = status
	data, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServices).Put([]byte(id), data)
	}); err != nil {
		return false
	}

	if status == service.FAIL && openDT == nil {
		return s.insertDowntime(id, now, extra) == nil
	}
	if status == service.OK && openDT != nil {
		return s.closeDowntime(openKey, openDT, now) == nil
	}
	return true
}

func (s *BoltStore) AllServices(ctx context.Context, filter ServiceFilter) ([]ServiceRecord, error) {
	var out []ServiceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		return b.ForEach(func(k, v []byte) error {
			var rec storedService
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if filter.Category != "" && rec.Category != filter.Category {
				return nil
			}
			if filter.Kind != "" && rec.Kind != filter.Kind {
				return nil
			}
			out = append(out, rec.record())
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) SetStatusPublic(ctx context.Context, serviceID string, status service.Status) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		raw := b.Get([]byte(serviceID))
		if raw == nil {
			return fmt.Errorf("service not found: %s", serviceID)
		}
		var rec storedService
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		val := int(status)
		if rec.StatusPublic != nil && *rec.StatusPublic == val {
			return nil
		}
		rec.StatusPublic = &val
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(serviceID), data)
	})
}

func (s *BoltStore) OpenDowntime(ctx context.Context, serviceID string) (*DowntimeRecord, error) {
	found, _, err := s.openDowntimeRow(serviceID)
	if err != nil || found == nil {
		return nil, err
	}
	rec := found.record()
	return &rec, nil
}

func (s *BoltStore) FindDowntimes(ctx context.Context, serviceID string, start, duration int64) ([]DowntimeRecord, error) {
	end := start + duration
	var out []DowntimeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		return b.ForEach(func(k, v []byte) error {
			var d storedDowntime
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.ServiceID != serviceID {
				return nil
			}
			downEnd := d.DownEndDate
			if downEnd == 0 {
				downEnd = end
			}
			if d.DownStartDate < end && downEnd > start {
				out = append(out, d.record())
			}
			return nil
		})
	})
	return out, err
}

func watermarkKey(kind PeriodKind) []byte { return []byte(kind) }

func (s *BoltStore) Watermark(ctx context.Context, kind PeriodKind) (int64, bool, error) {
	var next int64
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermark)
		raw := b.Get(watermarkKey(kind))
		if raw == nil {
			return nil
		}
		found = true
		next = int64(binary.BigEndian.Uint64(raw))
		return nil
	})
	return next, found, err
}

func (s *BoltStore) SetWatermark(ctx context.Context, kind PeriodKind, next int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermark)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(next))
		return b.Put(watermarkKey(kind), buf)
	})
}

func slaRowKey(serviceID string, periodStart int64) []byte {
	return []byte(fmt.Sprintf("%s|%d", serviceID, periodStart))
}

func (s *BoltStore) UpsertSLA(ctx context.Context, kind PeriodKind, serviceID string, periodStart int64, sla float64) error {
	bucket := slaBucket(kind)
	if bucket == nil {
		return fmt.Errorf("unknown period kind: %s", kind)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		row := storedSLA{ServiceID: serviceID, Date: periodStart, SLA: sla}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put(slaRowKey(serviceID, periodStart), data)
	})
}

func (s *BoltStore) SLA(ctx context.Context, kind PeriodKind, serviceID string, periodStart int64) (float64, bool, error) {
	bucket := slaBucket(kind)
	if bucket == nil {
		return 0, false, fmt.Errorf("unknown period kind: %s", kind)
	}
	var sla float64
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		raw := b.Get(slaRowKey(serviceID, periodStart))
		if raw == nil {
			return nil
		}
		var row storedSLA
		if err := json.Unmarshal(raw, &row); err != nil {
			return err
		}
		sla = row.SLA
		found = true
		return nil
	})
	return sla, found, err
}

// Heartbeat is InstanceLock's conditional update: the stored date advances
// to now only if it is absent or older than olderThan.
func (s *BoltStore) Heartbeat(ctx context.Context, olderThan time.Duration) (bool, error) {
	now := time.Now().Unix()
	threshold := now - int64(olderThan.Seconds())

	var won bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstance)
		raw := b.Get([]byte(instanceKey))
		if raw == nil {
			inst := storedInstance{ID: uuid.NewString(), Date: now}
			data, err := json.Marshal(inst)
			if err != nil {
				return err
			}
			won = true
			return b.Put([]byte(instanceKey), data)
		}

		var inst storedInstance
		if err := json.Unmarshal(raw, &inst); err != nil {
			return err
		}
		if inst.Date > threshold {
			won = false
			return nil
		}
		inst.Date = now
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		won = true
		return b.Put([]byte(instanceKey), data)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

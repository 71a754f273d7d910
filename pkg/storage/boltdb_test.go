package storage

import (
	"context"
	"testing"
	"time"

	"github.com/mickybart/uptimed/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpdateStatus_FirstObservationOK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")

	require.True(t, s.UpdateStatus(ctx, svc, service.OK, nil))

	records, err := s.AllServices(ctx, ServiceFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, service.OK, records[0].Status)

	dt, err := s.OpenDowntime(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Nil(t, dt)
}

func TestUpdateStatus_FirstObservationFail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")

	require.True(t, s.UpdateStatus(ctx, svc, service.FAIL, nil))

	records, _ := s.AllServices(ctx, ServiceFilter{})
	require.Len(t, records, 1)

	dt, err := s.OpenDowntime(ctx, records[0].ID)
	require.NoError(t, err)
	require.NotNil(t, dt)
	assert.Equal(t, int64(0), dt.DownEnd)
}

// TestUpdateStatus_OneOpenDowntime: a
// FAIL->OK->FAIL->OK sequence never leaves more than one open downtime, and
// reporting the same status twice in a row never opens a second one.
func TestUpdateStatus_OneOpenDowntime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")

	sequence := []service.Status{service.OK, service.FAIL, service.FAIL, service.OK, service.FAIL, service.OK}
	for _, st := range sequence {
		require.True(t, s.UpdateStatus(ctx, svc, st, nil))
	}

	records, _ := s.AllServices(ctx, ServiceFilter{})
	require.Len(t, records, 1)

	var open int
	history, err := s.FindDowntimes(ctx, records[0].ID, 0, time.Now().Unix()+1)
	require.NoError(t, err)
	for _, d := range history {
		if d.Open() {
			open++
		}
	}
	assert.LessOrEqual(t, open, 1)
	assert.Equal(t, 2, len(history)) // two FAIL->OK cycles, both closed
}

// TestUpdateStatus_ReconcilesHalfWrite simulates a crash between the two
// writes UpdateStatus makes for a transition: the service row says FAIL but
// the downtime row was never inserted. The next call for the same reported
// status must self-heal by inserting the missing open downtime.
func TestUpdateStatus_ReconcilesHalfWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := service.NewHTTPIngress("a", "site", "https://x/health", nil, "")

	require.True(t, s.UpdateStatus(ctx, svc, service.FAIL, nil))
	records, _ := s.AllServices(ctx, ServiceFilter{})
	id := records[0].ID

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		var keys [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}))

	dt, err := s.OpenDowntime(ctx, id)
	require.NoError(t, err)
	require.Nil(t, dt)

	require.True(t, s.UpdateStatus(ctx, svc, service.FAIL, nil))

	dt, err = s.OpenDowntime(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, dt)
}

func TestWatermark_MonotonicWriteRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Watermark(ctx, Daily)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetWatermark(ctx, Daily, 100))
	next, ok, err := s.Watermark(ctx, Daily)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), next)

	require.NoError(t, s.SetWatermark(ctx, Daily, 200))
	next, _, _ = s.Watermark(ctx, Daily)
	assert.Equal(t, int64(200), next)
}

func TestUpsertSLA_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertSLA(ctx, Daily, "svc-1", 1000, 99.5))
	require.NoError(t, s.UpsertSLA(ctx, Daily, "svc-1", 1000, 99.5))

	sla, ok, err := s.SLA(ctx, Daily, "svc-1", 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 99.5, sla, 0.001)
}

func TestHeartbeat_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	won, err := s.Heartbeat(ctx, 180*time.Second)
	require.NoError(t, err)
	require.True(t, won)

	// A second immediate heartbeat attempt at the same threshold loses: the
	// stored date is fresh, so the conditional update does not match.
	won, err = s.Heartbeat(ctx, 180*time.Second)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestClipDowntime(t *testing.T) {
	cases := []struct {
		name                        string
		start, end                  int64
		windowStart, windowDuration int64
		want                        int64
	}{
		{"fully inside", 10, 30, 0, 100, 20},
		{"open ended clips to window end", 70, 0, 0, 100, 30},
		{"before window", 0, 5, 10, 100, 0},
		{"after window", 200, 250, 0, 100, 0},
		{"overlaps start", 0, 50, 10, 100, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClipDowntime(tc.start, tc.end, tc.windowStart, tc.windowDuration)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSLAForDowntimes_ScenarioThree(t *testing.T) {
	downtimes := []DowntimeRecord{
		{DownStart: 10, DownEnd: 30},
		{DownStart: 70, DownEnd: 0},
	}
	sla := SLAForDowntimes(downtimes, 0, 100)
	assert.InDelta(t, 50.0, sla, 0.001)
}

package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func unixUTC(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
}

// TestMonthly_AdvanceAcrossFebruary: monthly
// consolidation run at T=2024-03-05 with watermark next_monthly=2024-03-01
// must compute the period starting 2024-02-01, and the watermark then
// advances to 2024-04-01.
func TestMonthly_AdvanceAcrossFebruary(t *testing.T) {
	watermark := unixUTC(2024, 3, 1)

	period := previousMonthly(watermark)
	assert.Equal(t, unixUTC(2024, 2, 1), period)

	next := nextMonthly(watermark)
	assert.Equal(t, unixUTC(2024, 4, 1), next)
}

func TestMonthly_YearRollover(t *testing.T) {
	watermark := unixUTC(2024, 12, 1)
	assert.Equal(t, unixUTC(2025, 1, 1), nextMonthly(watermark))
	assert.Equal(t, unixUTC(2023, 12, 1), previousMonthly(unixUTC(2024, 1, 1)))
}

func TestMonthDuration_VariesByMonth(t *testing.T) {
	feb2024 := unixUTC(2024, 2, 1) // leap year: 29 days
	assert.Equal(t, int64(29*daySeconds), monthDuration(feb2024))

	jan2024 := unixUTC(2024, 1, 1) // 31 days
	assert.Equal(t, int64(31*daySeconds), monthDuration(jan2024))

	apr2024 := unixUTC(2024, 4, 1) // 30 days
	assert.Equal(t, int64(30*daySeconds), monthDuration(apr2024))
}

func TestMondayOfWeek(t *testing.T) {
	// 2024-07-29 is a Monday.
	monday := time.Date(2024, 7, 29, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 7; offset++ {
		day := monday.AddDate(0, 0, offset)
		assert.Equal(t, monday.Unix(), mondayOfWeek(day).Unix(), "offset=%d", offset)
	}
}

func TestInitialWatermarks_SkipsPartialPeriod(t *testing.T) {
	now := time.Date(2024, 7, 31, 15, 30, 0, 0, time.UTC) // a Wednesday
	daily, weekly, monthly := initialWatermarks(now)

	assert.Equal(t, unixUTC(2024, 7, 31), daily)
	assert.Equal(t, unixUTC(2024, 7, 29), weekly) // Monday of that week
	assert.Equal(t, unixUTC(2024, 7, 1), monthly)
}

// TestInitialWatermarks_NonUTCClock: a wall clock in any zone must anchor
// on the same UTC period boundaries, and the monthly watermark must
// round-trip through next/previous without drifting. A local-midnight
// anchor would shift by the UTC offset on its first advance.
func TestInitialWatermarks_NonUTCClock(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, 3, 1, 3, 0, 0, 0, tokyo) // 2024-02-29T18:00:00Z

	daily, weekly, monthly := initialWatermarks(now)

	assert.Equal(t, unixUTC(2024, 2, 29), daily)
	assert.Equal(t, unixUTC(2024, 2, 26), weekly) // Monday of that UTC week
	assert.Equal(t, unixUTC(2024, 2, 1), monthly)

	assert.Equal(t, monthly, previousMonthly(nextMonthly(monthly)))
	assert.Equal(t, unixUTC(2024, 3, 1), nextMonthly(monthly))
}

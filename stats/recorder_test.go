package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkealabs/linkea/models"
)

func TestRecordClickCreatesBucketAndLifetime(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	link := seedLink(t, db, landing.ID, "github")
	rec := NewRecorder(db, testClock())

	rec.RecordClick(link.ID, time.Time{})

	var row models.LinkClickCounter
	require.NoError(t, db.First(&row, "link_id = ?", link.ID).Error)
	assert.Equal(t, int64(1), row.Count)
	assert.Equal(t, dayKey(day(0)), dayKey(row.Date))

	var fresh models.Link
	require.NoError(t, db.First(&fresh, "id = ?", link.ID).Error)
	assert.Equal(t, int64(1), fresh.Visited)
}

func TestRecordClickIncrementsExistingBucket(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	link := seedLink(t, db, landing.ID, "github")
	rec := NewRecorder(db, testClock())

	for i := 0; i < 5; i++ {
		rec.RecordClick(link.ID, time.Time{})
	}

	var rows []models.LinkClickCounter
	require.NoError(t, db.Find(&rows, "link_id = ?", link.ID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0].Count)

	var fresh models.Link
	require.NoError(t, db.First(&fresh, "id = ?", link.ID).Error)
	assert.Equal(t, int64(5), fresh.Visited)
}

func TestRecordClickConcurrent(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	link := seedLink(t, db, landing.ID, "github")
	rec := NewRecorder(db, testClock())

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			rec.RecordClick(link.ID, time.Time{})
		}()
	}
	wg.Wait()

	// Exactly one bucket whose count equals the number of events, no matter
	// how the creation race interleaved.
	var rows []models.LinkClickCounter
	require.NoError(t, db.Find(&rows, "link_id = ?", link.ID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(n), rows[0].Count)

	var fresh models.Link
	require.NoError(t, db.First(&fresh, "id = ?", link.ID).Error)
	assert.Equal(t, int64(n), fresh.Visited)
}

func TestRecordViewConcurrentFirstEvent(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	rec := NewRecorder(db, testClock())

	// Two racing callers with no pre-existing row must end at one row with
	// count 2, never two rows.
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			rec.RecordView(landing.ID, time.Time{})
		}()
	}
	wg.Wait()

	var rows []models.LandingViewCounter
	require.NoError(t, db.Find(&rows, "landing_id = ?", landing.ID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Count)
}

func TestRecordCreateRaceFallsBackToIncrement(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	link := seedLink(t, db, landing.ID, "github")
	rec := NewRecorder(db, testClock())

	// Simulate losing the creation race: the row appears between the
	// recorder's find and create.
	seedClicks(t, db, link.ID, day(0), 1)
	require.ErrorIs(t, rec.store.CreateCounter(KindLinkClick, link.ID, day(0), 1), ErrDuplicateCounter)

	rec.RecordClick(link.ID, time.Time{})

	var rows []models.LinkClickCounter
	require.NoError(t, db.Find(&rows, "link_id = ?", link.ID).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Count)
}

func TestRecordUnknownEntityDropped(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db, testClock())

	rec.RecordClick("no-such-link", time.Time{})
	rec.RecordView("no-such-landing", time.Time{})

	var clicks, views int64
	require.NoError(t, db.Model(&models.LinkClickCounter{}).Count(&clicks).Error)
	require.NoError(t, db.Model(&models.LandingViewCounter{}).Count(&views).Error)
	assert.Zero(t, clicks)
	assert.Zero(t, views)
}

func TestRecordExplicitPastDate(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	link := seedLink(t, db, landing.ID, "github")
	rec := NewRecorder(db, testClock())

	rec.RecordClick(link.ID, day(-3))
	rec.RecordClick(link.ID, day(-3))
	rec.RecordClick(link.ID, time.Time{})

	var rows []models.LinkClickCounter
	require.NoError(t, db.Order("date asc").Find(&rows, "link_id = ?", link.ID).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, dayKey(day(-3)), dayKey(rows[0].Date))
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, dayKey(day(0)), dayKey(rows[1].Date))
	assert.Equal(t, int64(1), rows[1].Count)
}

func TestLifetimeAndBucketsAreIndependent(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "ana@example.com")
	landing := seedLanding(t, db, user.ID, "ana")
	link := seedLink(t, db, landing.ID, "github")
	rec := NewRecorder(db, testClock())

	rec.RecordClick(link.ID, time.Time{})

	// Drift introduced out of band: the lifetime cache is not reconciled
	// against the summed buckets.
	require.NoError(t, db.Model(&models.Link{}).Where("id = ?", link.ID).
		UpdateColumn("visited", 100).Error)

	rec.RecordClick(link.ID, time.Time{})

	var row models.LinkClickCounter
	require.NoError(t, db.First(&row, "link_id = ?", link.ID).Error)
	assert.Equal(t, int64(2), row.Count)

	var fresh models.Link
	require.NoError(t, db.First(&fresh, "id = ?", link.ID).Error)
	assert.Equal(t, int64(101), fresh.Visited)
}

package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/linkealabs/linkea/models"
)

// testToday is the fixed "now" every test clock reports.
var testToday = time.Date(2025, 3, 15, 10, 30, 0, 0, time.Local)

func testClock() Clock {
	return FixedClock{T: testToday}
}

// day returns midnight of today+offset days.
func day(offset int) time.Time {
	return Midnight(testToday).AddDate(0, 0, offset)
}

// newTestDB opens an in-memory SQLite database migrated with the full
// schema. The pool is pinned to one connection: a second connection would
// see its own empty :memory: database, and a single connection also keeps
// concurrent test writers free of SQLITE_BUSY noise.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_loc=auto"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Landing{},
		&models.Link{},
		&models.LinkClickCounter{},
		&models.LandingViewCounter{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	verified := testToday.AddDate(0, -1, 0)
	user := &models.User{Email: email, FirstName: "Ana", VerifiedAt: &verified}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedLanding(t *testing.T, db *gorm.DB, userID uint, slug string) *models.Landing {
	t.Helper()
	landing := &models.Landing{UserID: userID, Slug: slug, Title: "My page"}
	require.NoError(t, db.Create(landing).Error)
	return landing
}

func seedLink(t *testing.T, db *gorm.DB, landingID, title string) *models.Link {
	t.Helper()
	link := &models.Link{LandingID: landingID, Title: title, URL: "https://example.com/" + title}
	require.NoError(t, db.Create(link).Error)
	return link
}

// seedClicks inserts a day bucket directly, bypassing the recorder.
func seedClicks(t *testing.T, db *gorm.DB, linkID string, date time.Time, count int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.LinkClickCounter{
		LinkID: linkID,
		Date:   Midnight(date),
		Count:  count,
	}).Error)
}

func seedViews(t *testing.T, db *gorm.DB, landingID string, date time.Time, count int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.LandingViewCounter{
		LandingID: landingID,
		Date:      Midnight(date),
		Count:     count,
	}).Error)
}

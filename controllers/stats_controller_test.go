package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/linkealabs/linkea/middleware"
	"github.com/linkealabs/linkea/models"
	"github.com/linkealabs/linkea/stats"
	"github.com/linkealabs/linkea/utils"
)

var testToday = time.Date(2025, 3, 15, 10, 30, 0, 0, time.Local)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

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

// newTestRouter wires the stats routes the way the production router does,
// without the rate limiter and file-based access log.
func newTestRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	gin.SetMode(gin.TestMode)
	r := gin.New()

	sc := NewStatsController(db, stats.FixedClock{T: testToday})
	api := r.Group("/api/v1")

	tracking := api.Group("")
	tracking.Use(middleware.BotFilter())
	tracking.POST("/links/:id/trace", sc.Trace)
	tracking.POST("/landings/:id/track", sc.TrackView)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.GET("/landings/:id/stats", sc.Dashboard)
	protected.GET("/links/:id/stats", sc.LinkStats)

	return r
}

func seedLandingWithLink(t *testing.T, db *gorm.DB) (*models.Landing, *models.Link) {
	t.Helper()
	verified := testToday.AddDate(0, -1, 0)
	user := &models.User{Email: "ana@example.com", FirstName: "Ana", VerifiedAt: &verified}
	require.NoError(t, db.Create(user).Error)
	landing := &models.Landing{UserID: user.ID, Slug: "ana", Title: "My page"}
	require.NoError(t, db.Create(landing).Error)
	link := &models.Link{LandingID: landing.ID, Title: "github", URL: "https://github.com/ana"}
	require.NoError(t, db.Create(link).Error)
	return landing, link
}

func doRequest(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) utils.JSONResponse {
	t.Helper()
	var res utils.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestTraceRecordsClick(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	_, link := seedLandingWithLink(t, db)

	w := doRequest(r, http.MethodPost, "/api/v1/links/"+link.ID+"/trace", map[string]string{
		"User-Agent":      browserUA,
		"Accept-Language": "en-US",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var row models.LinkClickCounter
	require.NoError(t, db.First(&row, "link_id = ?", link.ID).Error)
	assert.Equal(t, int64(1), row.Count)
}

func TestTraceUnknownLinkStillAnswersOK(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)

	w := doRequest(r, http.MethodPost, "/api/v1/links/no-such-link/trace", map[string]string{
		"User-Agent":      browserUA,
		"Accept-Language": "en-US",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.LinkClickCounter{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrackViewRecordsForBrowsers(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	landing, _ := seedLandingWithLink(t, db)

	w := doRequest(r, http.MethodPost, "/api/v1/landings/"+landing.ID+"/track", map[string]string{
		"User-Agent":      browserUA,
		"Accept-Language": "en-US",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var row models.LandingViewCounter
	require.NoError(t, db.First(&row, "landing_id = ?", landing.ID).Error)
	assert.Equal(t, int64(1), row.Count)
}

func TestTrackViewSkipsBots(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	landing, _ := seedLandingWithLink(t, db)

	for _, ua := range []string{
		"Googlebot/2.1 (+http://www.google.com/bot.html)",
		"curl/8.4.0",
		"", // empty UA counts as automated
	} {
		w := doRequest(r, http.MethodPost, "/api/v1/landings/"+landing.ID+"/track", map[string]string{
			"User-Agent": ua,
		})
		assert.Equal(t, http.StatusOK, w.Code)
		res := decodeResponse(t, w)
		data, _ := res.Data.(map[string]interface{})
		assert.Equal(t, "skipped", data["status"])
	}

	var count int64
	require.NoError(t, db.Model(&models.LandingViewCounter{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStatsEndpointsRequireAuth(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	landing, link := seedLandingWithLink(t, db)

	w := doRequest(r, http.MethodGet, "/api/v1/landings/"+landing.ID+"/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/links/"+link.ID+"/stats", map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40104, decodeResponse(t, w).Code)
}

func TestLinkStats(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	_, link := seedLandingWithLink(t, db)

	require.NoError(t, db.Create(&models.LinkClickCounter{
		LinkID: link.ID,
		Date:   stats.Midnight(testToday),
		Count:  6,
	}).Error)

	token, err := utils.GenerateToken(1, "ana@example.com", time.Hour)
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/links/"+link.ID+"/stats?days=7", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	res := decodeResponse(t, w)
	data, ok := res.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, link.ID, data["id"])
	summary, ok := data["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(6), summary["total"])

	sparkline, ok := data["sparkline"].([]interface{})
	require.True(t, ok)
	require.Len(t, sparkline, 7)
	assert.Equal(t, float64(6), sparkline[6])
}

func TestLinkStatsNotFound(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)

	token, err := utils.GenerateToken(1, "ana@example.com", time.Hour)
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/links/missing/stats", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40402, decodeResponse(t, w).Code)
}

func TestDashboardRefreshRecomputes(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	landing, link := seedLandingWithLink(t, db)

	require.NoError(t, db.Create(&models.LinkClickCounter{
		LinkID: link.ID,
		Date:   stats.Midnight(testToday),
		Count:  4,
	}).Error)

	token, err := utils.GenerateToken(1, "ana@example.com", time.Hour)
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/landings/"+landing.ID+"/stats?days=7&refresh=1", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	res := decodeResponse(t, w)
	data, ok := res.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["totalLinks"])
	assert.Equal(t, float64(4), data["clicksToday"])
}

func TestStatsReadsAnswer503WhenStoreIsDown(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)
	landing, link := seedLandingWithLink(t, db)

	token, err := utils.GenerateToken(1, "ana@example.com", time.Hour)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// A dead store must read as an outage, never as zero activity.
	for _, path := range []string{
		"/api/v1/landings/" + landing.ID + "/stats",
		"/api/v1/links/" + link.ID + "/stats",
	} {
		w := doRequest(r, http.MethodGet, path, map[string]string{
			"Authorization": "Bearer " + token,
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, 50301, decodeResponse(t, w).Code)
	}
}

func TestDashboardNotFound(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(t, db)

	token, err := utils.GenerateToken(1, "ana@example.com", time.Hour)
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/landings/missing/stats", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40401, decodeResponse(t, w).Code)
}

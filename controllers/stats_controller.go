package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/linkealabs/linkea/config"
	"github.com/linkealabs/linkea/middleware"
	"github.com/linkealabs/linkea/models"
	"github.com/linkealabs/linkea/stats"
	"github.com/linkealabs/linkea/utils"
)

// StatsController exposes the tracking endpoints and the owner-facing
// stats reads. Tracking never fails the caller; reads answer 503 on store
// trouble so dashboards can tell an outage from zero activity.
type StatsController struct {
	db       *gorm.DB
	recorder *stats.Recorder
	reporter *stats.Reporter
}

// NewStatsController creates a StatsController on the given connection.
func NewStatsController(db *gorm.DB, clock stats.Clock) *StatsController {
	return &StatsController{
		db:       db,
		recorder: stats.NewRecorder(db, clock),
		reporter: stats.NewReporter(db, clock),
	}
}

// Trace records a click on a link. Unknown ids and storage failures are
// swallowed by the recorder; the response is always a 200 so the redirect
// on the landing page never stalls or breaks.
func (s *StatsController) Trace(ctx *gin.Context) {
	s.recorder.RecordClick(ctx.Param("id"), time.Time{})
	utils.Success(ctx, gin.H{"status": "recorded"})
}

// TrackView records a view of a landing page unless the request looks like
// automated traffic.
func (s *StatsController) TrackView(ctx *gin.Context) {
	if middleware.IsBot(ctx) {
		utils.Success(ctx, gin.H{"status": "skipped", "reason": "bot_detected"})
		return
	}
	s.recorder.RecordView(ctx.Param("id"), time.Time{})
	utils.Success(ctx, gin.H{"status": "recorded"})
}

// Dashboard returns the full stats bag for a landing, cached briefly in
// Redis since it fans out into several aggregate queries. ?refresh=1
// drops the landing's cached entries before recomputing.
func (s *StatsController) Dashboard(ctx *gin.Context) {
	landingID := ctx.Param("id")
	chartDays := intQuery(ctx, "days", 30, 1, 90)

	cacheKey := fmt.Sprintf("stats:dashboard:%s:%d", landingID, chartDays)
	if ctx.Query("refresh") == "1" {
		// Owners can force a recompute right after new activity instead of
		// waiting out the TTL. All window variants of the landing go at once.
		utils.InvalidateByPrefix(fmt.Sprintf("stats:dashboard:%s:", landingID))
	} else if b, ok := utils.CacheGetBytes(cacheKey); ok {
		utils.Success(ctx, json.RawMessage(b))
		return
	}

	data, err := s.reporter.DashboardStats(landingID, chartDays)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "landing not found")
			return
		}
		statsUnavailable(ctx, err)
		return
	}

	ttl := time.Duration(config.Get().DashboardCacheTTLSec) * time.Second
	utils.CacheSetJSON(cacheKey, data, ttl)
	utils.Success(ctx, data)
}

// LinkStats returns the windowed summary, sparkline, recorded date range
// and week-over-week comparison for one link.
func (s *StatsController) LinkStats(ctx *gin.Context) {
	linkID := ctx.Param("id")
	windowDays := intQuery(ctx, "days", 30, 1, 90)

	var link models.Link
	if err := s.db.First(&link, "id = ?", linkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "link not found")
			return
		}
		statsUnavailable(ctx, err)
		return
	}

	agg := s.reporter.Aggregator()
	ids := []string{linkID}

	summary, err := agg.Summary(stats.KindLinkClick, ids, windowDays)
	if err != nil {
		statsUnavailable(ctx, err)
		return
	}
	sparklines, err := agg.Sparklines(stats.KindLinkClick, ids, windowDays)
	if err != nil {
		statsUnavailable(ctx, err)
		return
	}
	dateRange, err := agg.DateRange(stats.KindLinkClick, linkID)
	if err != nil {
		statsUnavailable(ctx, err)
		return
	}
	weekly, err := s.reporter.WindowComparison(stats.KindLinkClick, ids, 7)
	if err != nil {
		statsUnavailable(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"id":             link.ID,
		"title":          link.Title,
		"lifetime_total": link.Visited,
		"summary":        summary,
		"sparkline":      sparklines[linkID],
		"date_range":     dateRange,
		"weekly":         weekly,
	})
}

func statsUnavailable(ctx *gin.Context, err error) {
	if utils.Sugar != nil {
		utils.Sugar.Errorf("stats read failed: %v", err)
	}
	utils.Error(ctx, http.StatusServiceUnavailable, 50301, "stats unavailable")
}

func intQuery(ctx *gin.Context, name string, def, min, max int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return def
	}
	return v
}

package stats

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/linkealabs/linkea/models"
)

// Reporter builds the comparative statistics consumed by the dashboard and
// the weekly digest on top of the Aggregator's bulk reads.
type Reporter struct {
	db    *gorm.DB
	agg   *Aggregator
	clock Clock
}

// NewReporter builds a Reporter on the given connection and clock.
func NewReporter(db *gorm.DB, clock Clock) *Reporter {
	return &Reporter{db: db, agg: NewAggregator(db, clock), clock: clock}
}

// Aggregator exposes the underlying read side for callers that need raw
// sparklines or summaries next to report data.
func (rp *Reporter) Aggregator() *Aggregator { return rp.agg }

// WindowComparison compares the last windowDays (ending today) against the
// immediately preceding period of equal length.
type WindowComparison struct {
	Current       int64   `json:"current"`
	Previous      int64   `json:"previous"`
	ChangePercent float64 `json:"change_percent"`
}

// WindowComparison computes current vs previous period totals for the id
// set with two bounded bulk sums.
func (rp *Reporter) WindowComparison(kind Kind, entityIDs []string, windowDays int) (WindowComparison, error) {
	if windowDays <= 0 || len(entityIDs) == 0 {
		return WindowComparison{}, nil
	}
	today := Midnight(rp.clock.Now())
	curStart := today.AddDate(0, 0, -(windowDays - 1))
	prevEnd := curStart.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(windowDays - 1))

	current, err := rp.agg.WindowTotal(kind, entityIDs, curStart, today)
	if err != nil {
		return WindowComparison{}, err
	}
	previous, err := rp.agg.WindowTotal(kind, entityIDs, prevStart, prevEnd)
	if err != nil {
		return WindowComparison{}, err
	}
	return WindowComparison{
		Current:       current,
		Previous:      previous,
		ChangePercent: percentChange(current, previous),
	}, nil
}

// percentChange implements the period-over-period policy: a previous total
// of zero reads as +100 when anything happened now, and 0 when nothing did.
func percentChange(current, previous int64) float64 {
	switch {
	case previous > 0:
		return round1(float64(current-previous) / float64(previous) * 100)
	case current > 0:
		return 100
	default:
		return 0
	}
}

// RankingMode tags how a TopLinksResult was ordered so consumers can tell
// real windowed activity from the legacy lifetime-counter fallback.
type RankingMode string

const (
	// RankingWindowed means links were ranked by clicks inside the window.
	RankingWindowed RankingMode = "windowed"
	// RankingFallback means no link had any windowed counter rows, so the
	// ranking fell back to lifetime click totals.
	RankingFallback RankingMode = "fallback"
)

// TopLink is one ranked entry with its own sparkline over the same window.
type TopLink struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	Clicks    int64   `json:"clicks"`
	Sparkline []int64 `json:"sparkline"`
}

// TopLinksResult carries the ranking together with its provenance tag.
type TopLinksResult struct {
	Mode  RankingMode `json:"ranking_mode"`
	Links []TopLink   `json:"links"`
}

// TopLinks ranks a landing's active, clickable links by clicks within the
// window, descending, ties broken by link id for deterministic output.
// Landings whose links predate day-bucketed tracking have no counter rows
// at all; those fall back to lifetime totals and are tagged accordingly.
func (rp *Reporter) TopLinks(landingID string, windowDays, limit int) (TopLinksResult, error) {
	res := TopLinksResult{Mode: RankingWindowed, Links: []TopLink{}}

	var links []models.Link
	err := rp.db.
		Where("landing_id = ? AND state = ? AND type <> ?", landingID, true, models.LinkTypeHeader).
		Find(&links).Error
	if err != nil {
		return res, fmt.Errorf("load landing links: %w", err)
	}
	if len(links) == 0 {
		return res, nil
	}

	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}

	windowed, err := rp.windowedClicks(ids, windowDays)
	if err != nil {
		return res, err
	}

	ranked := make([]models.Link, len(links))
	copy(ranked, links)

	if len(windowed) == 0 {
		res.Mode = RankingFallback
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Visited != ranked[j].Visited {
				return ranked[i].Visited > ranked[j].Visited
			}
			return ranked[i].ID < ranked[j].ID
		})
	} else {
		sort.Slice(ranked, func(i, j int) bool {
			ci, cj := windowed[ranked[i].ID], windowed[ranked[j].ID]
			if ci != cj {
				return ci > cj
			}
			return ranked[i].ID < ranked[j].ID
		})
	}

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	topIDs := make([]string, len(ranked))
	for i, l := range ranked {
		topIDs[i] = l.ID
	}
	sparklines, err := rp.agg.Sparklines(KindLinkClick, topIDs, windowDays)
	if err != nil {
		return res, err
	}

	for _, l := range ranked {
		clicks := windowed[l.ID]
		if res.Mode == RankingFallback {
			clicks = l.Visited
		}
		res.Links = append(res.Links, TopLink{
			ID:        l.ID,
			Title:     l.Title,
			Type:      l.Type,
			Clicks:    clicks,
			Sparkline: sparklines[l.ID],
		})
	}
	return res, nil
}

// windowedClicks returns per-link click sums inside the window; links with
// no rows are absent from the map. An empty map therefore means the whole
// landing has no windowed data.
func (rp *Reporter) windowedClicks(linkIDs []string, windowDays int) (map[string]int64, error) {
	today := Midnight(rp.clock.Now())
	start := today.AddDate(0, 0, -(windowDays - 1))

	var rows []counterRow
	err := rp.db.Model(&models.LinkClickCounter{}).
		Select("link_id AS entity_id, COALESCE(SUM(count),0) AS count").
		Where("link_id IN ? AND date >= ? AND date <= ?", linkIDs, start, today).
		Group("link_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("windowed clicks: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.EntityID] = row.Count
	}
	return out, nil
}

// ChartPoint is one dashboard chart entry.
type ChartPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LinkTypeStat is the per-type breakdown of a landing's clickable links.
type LinkTypeStat struct {
	Type   string `json:"type"`
	Count  int    `json:"count"`
	Clicks int64  `json:"clicks"`
}

// DashboardStats is the full stats bag rendered by the owner dashboard.
// Lifetime figures come from the denormalized counters; windowed figures
// from the day buckets. The two may drift and no reconciliation happens.
type DashboardStats struct {
	TotalViews          int64          `json:"totalViews"`
	TotalClicks         int64          `json:"totalClicks"`
	TotalLinks          int            `json:"totalLinks"`
	ActiveLinks         int            `json:"activeLinks"`
	ViewsToday          int64          `json:"viewsToday"`
	ViewsThisWeek       int64          `json:"viewsThisWeek"`
	ViewsThisMonth      int64          `json:"viewsThisMonth"`
	ClicksToday         int64          `json:"clicksToday"`
	ClicksThisWeek      int64          `json:"clicksThisWeek"`
	ClicksThisMonth     int64          `json:"clicksThisMonth"`
	WeeklyChangePercent float64        `json:"weeklyChangePercent"`
	DailyAverage        float64        `json:"dailyAverage"`
	ChartData           []ChartPoint   `json:"chartData"`
	ViewChartData       []ChartPoint   `json:"viewChartData"`
	TopLinks            TopLinksResult `json:"topLinks"`
	LinksByType         []LinkTypeStat `json:"linksByType"`
}

// DashboardStats assembles the dashboard bag for one landing. It returns
// gorm.ErrRecordNotFound when the landing does not exist and propagates
// store errors so the HTTP layer can answer "stats unavailable" instead of
// silently reporting zeros.
func (rp *Reporter) DashboardStats(landingID string, chartDays int) (*DashboardStats, error) {
	var landing models.Landing
	if err := rp.db.First(&landing, "id = ?", landingID).Error; err != nil {
		return nil, err
	}

	var links []models.Link
	if err := rp.db.Where("landing_id = ?", landingID).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("load landing links: %w", err)
	}

	linkIDs := make([]string, len(links))
	out := &DashboardStats{TotalViews: landing.Views, TotalLinks: len(links)}
	for i, l := range links {
		linkIDs[i] = l.ID
		out.TotalClicks += l.Visited
		if l.State {
			out.ActiveLinks++
		}
	}

	today := Midnight(rp.clock.Now())
	weekStart := startOfWeek(today)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	landingIDs := []string{landingID}

	var err error
	if out.ViewsToday, err = rp.agg.WindowTotal(KindLandingView, landingIDs, today, today); err != nil {
		return nil, err
	}
	if out.ViewsThisWeek, err = rp.agg.WindowTotal(KindLandingView, landingIDs, weekStart, today); err != nil {
		return nil, err
	}
	if out.ViewsThisMonth, err = rp.agg.WindowTotal(KindLandingView, landingIDs, monthStart, today); err != nil {
		return nil, err
	}
	if out.ClicksToday, err = rp.agg.WindowTotal(KindLinkClick, linkIDs, today, today); err != nil {
		return nil, err
	}
	if out.ClicksThisWeek, err = rp.agg.WindowTotal(KindLinkClick, linkIDs, weekStart, today); err != nil {
		return nil, err
	}
	if out.ClicksThisMonth, err = rp.agg.WindowTotal(KindLinkClick, linkIDs, monthStart, today); err != nil {
		return nil, err
	}

	weekly, err := rp.WindowComparison(KindLinkClick, linkIDs, 7)
	if err != nil {
		return nil, err
	}
	out.WeeklyChangePercent = weekly.ChangePercent

	monthSummary, err := rp.agg.Summary(KindLinkClick, linkIDs, 30)
	if err != nil {
		return nil, err
	}
	out.DailyAverage = monthSummary.Average

	clickSeries, err := rp.agg.DailyTotals(KindLinkClick, linkIDs, chartDays)
	if err != nil {
		return nil, err
	}
	out.ChartData = chartPoints(clickSeries)

	viewSeries, err := rp.agg.DailyTotals(KindLandingView, landingIDs, chartDays)
	if err != nil {
		return nil, err
	}
	out.ViewChartData = chartPoints(viewSeries)

	if out.TopLinks, err = rp.TopLinks(landingID, 7, 5); err != nil {
		return nil, err
	}

	out.LinksByType = linksByType(links)
	return out, nil
}

func chartPoints(series []DayTotal) []ChartPoint {
	points := make([]ChartPoint, len(series))
	for i, d := range series {
		points[i] = ChartPoint{Date: dayKey(d.Date), Value: d.Total}
	}
	return points
}

func linksByType(links []models.Link) []LinkTypeStat {
	byType := map[string]*LinkTypeStat{}
	order := []string{}
	for _, l := range links {
		if !l.Clickable() {
			continue
		}
		st := byType[l.Type]
		if st == nil {
			st = &LinkTypeStat{Type: l.Type}
			byType[l.Type] = st
			order = append(order, l.Type)
		}
		st.Count++
		st.Clicks += l.Visited
	}
	out := make([]LinkTypeStat, 0, len(order))
	for _, t := range order {
		out = append(out, *byType[t])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// startOfWeek returns the Monday of t's week at midnight.
func startOfWeek(t time.Time) time.Time {
	t = Midnight(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

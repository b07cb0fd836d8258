package stats

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// Aggregator is the read side of the counter engine. Every query is issued
// once for the whole entity set and reshaped in memory; callers hand in the
// full id batch instead of looping, since dashboards and digests may
// reference hundreds of links at a time.
//
// Reads are not transactionally consistent with concurrent writes; a result
// may miss an increment committed moments earlier. Errors propagate so the
// caller can tell an outage apart from genuine zero activity.
type Aggregator struct {
	db    *gorm.DB
	clock Clock
}

// NewAggregator builds an Aggregator on the given connection and clock.
func NewAggregator(db *gorm.DB, clock Clock) *Aggregator {
	return &Aggregator{db: db, clock: clock}
}

// Summary holds windowed aggregate figures for a set of entities.
// Average is Total divided by the window length, not by days with data.
type Summary struct {
	Total   int64   `json:"total"`
	Average float64 `json:"average"`
	Max     int64   `json:"max"`
	Days    int     `json:"days"`
}

// DateRange reports the recorded history bounds for one entity. HasData
// distinguishes "no history yet" from a genuine zero somewhere inside it.
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
	HasData  bool      `json:"has_data"`
}

// DayTotal is one point of a zero-filled day series summed across entities.
type DayTotal struct {
	Date  time.Time `json:"date"`
	Total int64     `json:"total"`
}

// counterRow is the driver-agnostic shape rows are scanned into; the entity
// column is aliased so both counter relations fit.
type counterRow struct {
	EntityID string
	Date     time.Time
	Count    int64
}

// Sparklines returns, for each requested entity, windowDays per-day counts
// ordered oldest first and ending today. Days without a counter row are
// zero-filled. One bulk fetch covers the whole id set.
func (a *Aggregator) Sparklines(kind Kind, entityIDs []string, windowDays int) (map[string][]int64, error) {
	out := make(map[string][]int64, len(entityIDs))
	if len(entityIDs) == 0 || windowDays <= 0 {
		return out, nil
	}

	today := Midnight(a.clock.Now())
	start := today.AddDate(0, 0, -(windowDays - 1))

	rows, err := a.fetchWindow(kind, entityIDs, start, today)
	if err != nil {
		return nil, err
	}

	// entity id -> day key -> count
	byEntity := make(map[string]map[string]int64, len(entityIDs))
	for _, row := range rows {
		days := byEntity[row.EntityID]
		if days == nil {
			days = make(map[string]int64)
			byEntity[row.EntityID] = days
		}
		days[dayKey(row.Date)] = row.Count
	}

	for _, id := range entityIDs {
		days := byEntity[id]
		line := make([]int64, 0, windowDays)
		for i := windowDays - 1; i >= 0; i-- {
			line = append(line, days[dayKey(today.AddDate(0, 0, -i))])
		}
		out[id] = line
	}
	return out, nil
}

// Summary aggregates sum/average/max over the window for the whole id set
// in a single SUM/MAX statement.
func (a *Aggregator) Summary(kind Kind, entityIDs []string, windowDays int) (Summary, error) {
	s := Summary{Days: windowDays}
	if len(entityIDs) == 0 || windowDays <= 0 {
		return s, nil
	}

	today := Midnight(a.clock.Now())
	start := today.AddDate(0, 0, -(windowDays - 1))

	var agg struct {
		Total int64
		Max   int64
	}
	err := a.db.Model(kind.model()).
		Select("COALESCE(SUM(count),0) AS total, COALESCE(MAX(count),0) AS max").
		Where(kind.entityColumn()+" IN ? AND date >= ? AND date <= ?", entityIDs, start, today).
		Scan(&agg).Error
	if err != nil {
		return s, fmt.Errorf("summarize %s counters: %w", kind, err)
	}

	s.Total = agg.Total
	s.Max = agg.Max
	s.Average = round1(float64(agg.Total) / float64(windowDays))
	return s, nil
}

// WindowTotal is Summary reduced to the sum; the reporter uses it for
// period comparisons and the dashboard's today/week/month figures.
func (a *Aggregator) WindowTotal(kind Kind, entityIDs []string, from, until time.Time) (int64, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := a.db.Model(kind.model()).
		Select("COALESCE(SUM(count),0)").
		Where(kind.entityColumn()+" IN ? AND date >= ? AND date <= ?", entityIDs, Midnight(from), Midnight(until)).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("total %s counters: %w", kind, err)
	}
	return total, nil
}

// DateRange returns the earliest and latest recorded dates for one entity.
func (a *Aggregator) DateRange(kind Kind, entityID string) (DateRange, error) {
	first, ok, err := a.boundary(kind, entityID, "date asc")
	if err != nil {
		return DateRange{}, err
	}
	if !ok {
		return DateRange{}, nil
	}
	last, _, err := a.boundary(kind, entityID, "date desc")
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Earliest: first, Latest: last, HasData: true}, nil
}

// DailyTotals returns the per-day sum across the id set, zero-filled over
// the window oldest first. This feeds dashboard chart data.
func (a *Aggregator) DailyTotals(kind Kind, entityIDs []string, windowDays int) ([]DayTotal, error) {
	if windowDays <= 0 {
		return nil, nil
	}
	today := Midnight(a.clock.Now())
	start := today.AddDate(0, 0, -(windowDays - 1))

	totals := make(map[string]int64)
	if len(entityIDs) > 0 {
		var rows []counterRow
		err := a.db.Model(kind.model()).
			Select("date, COALESCE(SUM(count),0) AS count").
			Where(kind.entityColumn()+" IN ? AND date >= ? AND date <= ?", entityIDs, start, today).
			Group("date").
			Order("date asc").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("daily %s totals: %w", kind, err)
		}
		for _, row := range rows {
			totals[dayKey(row.Date)] = row.Count
		}
	}

	series := make([]DayTotal, 0, windowDays)
	for i := windowDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		series = append(series, DayTotal{Date: day, Total: totals[dayKey(day)]})
	}
	return series, nil
}

// fetchWindow is bounded on both sides: retroactive writes may also put
// rows past "today" into the relations, and those must not leak into a
// window that ends today.
func (a *Aggregator) fetchWindow(kind Kind, entityIDs []string, since, until time.Time) ([]counterRow, error) {
	var rows []counterRow
	err := a.db.Model(kind.model()).
		Select(kind.entityColumn()+" AS entity_id, date, count").
		Where(kind.entityColumn()+" IN ? AND date >= ? AND date <= ?", entityIDs, since, until).
		Order("date asc").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch %s window: %w", kind, err)
	}
	return rows, nil
}

func (a *Aggregator) boundary(kind Kind, entityID, order string) (time.Time, bool, error) {
	var rows []counterRow
	err := a.db.Model(kind.model()).
		Select("date, count").
		Where(kind.entityColumn()+" = ?", entityID).
		Order(order).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s date range: %w", kind, err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].Date, true, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

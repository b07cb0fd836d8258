package stats

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/linkealabs/linkea/models"
	"github.com/linkealabs/linkea/utils"
)

// Recorder is the only writer of the counter relations. Every public method
// is fire-and-forget: tracking must never fail or slow down the user action
// that triggered it, so all failure modes are handled or logged here and
// nothing propagates to the caller.
type Recorder struct {
	db    *gorm.DB
	store *Store
	clock Clock
}

// NewRecorder builds a Recorder on the given connection and clock.
func NewRecorder(db *gorm.DB, clock Clock) *Recorder {
	return &Recorder{db: db, store: NewStore(db), clock: clock}
}

// RecordClick counts one click on a link. A zero date means "today".
func (r *Recorder) RecordClick(linkID string, date time.Time) {
	r.record(KindLinkClick, linkID, date)
}

// RecordView counts one view of a landing page. A zero date means "today".
func (r *Recorder) RecordView(landingID string, date time.Time) {
	r.record(KindLandingView, landingID, date)
}

func (r *Recorder) record(kind Kind, entityID string, date time.Time) {
	if date.IsZero() {
		date = r.clock.Now()
	}
	date = Midnight(date)

	known, err := r.entityExists(kind, entityID)
	if err != nil {
		logWarn("stats: %s event lost, store unreachable: %v", kind, err)
		return
	}
	if !known {
		logWarn("stats: dropped %s event for unknown entity %s", kind, entityID)
		return
	}

	if err := r.bumpDayBucket(kind, entityID, date); err != nil {
		logWarn("stats: %s day bucket update failed for %s: %v", kind, entityID, err)
	}

	// Lifetime counter is deliberately independent of the day bucket: either
	// side may fail without rolling back the other, and the two are allowed
	// to drift.
	if err := r.bumpLifetime(kind, entityID); err != nil {
		logWarn("stats: lifetime counter update failed for %s %s: %v", kind, entityID, err)
	}
}

// bumpDayBucket is the race-safe increment-or-create. The common case is a
// single atomic increment; only the first event of a day pays the create,
// and only a lost creation race pays the extra fallback round trip.
func (r *Recorder) bumpDayBucket(kind Kind, entityID string, date time.Time) error {
	found, err := r.store.FindCounter(kind, entityID, date)
	if err != nil {
		return err
	}
	if found {
		return r.store.IncrementCounter(kind, entityID, date, 1)
	}
	err = r.store.CreateCounter(kind, entityID, date, 1)
	if errors.Is(err, ErrDuplicateCounter) {
		// Another writer created the row between our find and create.
		return r.store.IncrementCounter(kind, entityID, date, 1)
	}
	return err
}

func (r *Recorder) bumpLifetime(kind Kind, entityID string) error {
	if kind == KindLandingView {
		return r.db.Model(&models.Landing{}).
			Where("id = ?", entityID).
			UpdateColumn("views", gorm.Expr("views + 1")).Error
	}
	return r.db.Model(&models.Link{}).
		Where("id = ?", entityID).
		UpdateColumn("visited", gorm.Expr("visited + 1")).Error
}

func (r *Recorder) entityExists(kind Kind, entityID string) (bool, error) {
	var n int64
	q := r.db.Model(&models.Link{})
	if kind == KindLandingView {
		q = r.db.Model(&models.Landing{})
	}
	if err := q.Where("id = ?", entityID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func logWarn(format string, args ...interface{}) {
	if utils.Sugar != nil {
		utils.Sugar.Warnf(format, args...)
	}
}

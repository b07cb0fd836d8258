package stats

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/linkealabs/linkea/models"
)

// Kind selects which day-bucketed counter relation an operation targets.
type Kind int

const (
	// KindLinkClick counts clicks on an individual link.
	KindLinkClick Kind = iota
	// KindLandingView counts views of a public landing page.
	KindLandingView
)

// String is used in log fields only.
func (k Kind) String() string {
	if k == KindLandingView {
		return "landing_view"
	}
	return "link_click"
}

func (k Kind) model() interface{} {
	if k == KindLandingView {
		return &models.LandingViewCounter{}
	}
	return &models.LinkClickCounter{}
}

func (k Kind) entityColumn() string {
	if k == KindLandingView {
		return "landing_id"
	}
	return "link_id"
}

func (k Kind) newCounter(entityID string, date time.Time, count int64) interface{} {
	if k == KindLandingView {
		return &models.LandingViewCounter{LandingID: entityID, Date: date, Count: count}
	}
	return &models.LinkClickCounter{LinkID: entityID, Date: date, Count: count}
}

// ErrDuplicateCounter is returned by CreateCounter when a racing writer
// already created the row for the same (entity, date) key. Callers recover
// by falling back to IncrementCounter; the error never leaves the package.
var ErrDuplicateCounter = errors.New("stats: counter row already exists")

// Store holds the day-bucketed counter relations and exposes the write
// primitives the recorder is built from. Reads go through the Aggregator.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection. The connection must be opened with
// TranslateError enabled so unique-index violations surface as
// gorm.ErrDuplicatedKey on every supported driver.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindCounter reports whether a counter row exists for the key.
func (s *Store) FindCounter(kind Kind, entityID string, date time.Time) (bool, error) {
	var n int64
	err := s.db.Model(kind.model()).
		Where(kind.entityColumn()+" = ? AND date = ?", entityID, Midnight(date)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("find %s counter: %w", kind, err)
	}
	return n > 0, nil
}

// CreateCounter inserts a fresh counter row. Losing the creation race is an
// expected outcome and is reported as ErrDuplicateCounter.
func (s *Store) CreateCounter(kind Kind, entityID string, date time.Time, count int64) error {
	err := s.db.Create(kind.newCounter(entityID, Midnight(date), count)).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateCounter
	}
	return fmt.Errorf("create %s counter: %w", kind, err)
}

// IncrementCounter bumps an existing row by delta as a single atomic
// UPDATE; there is no read-then-write in application code.
func (s *Store) IncrementCounter(kind Kind, entityID string, date time.Time, delta int64) error {
	err := s.db.Model(kind.model()).
		Where(kind.entityColumn()+" = ? AND date = ?", entityID, Midnight(date)).
		UpdateColumn("count", gorm.Expr("count + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("increment %s counter: %w", kind, err)
	}
	return nil
}

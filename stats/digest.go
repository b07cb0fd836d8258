package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/linkealabs/linkea/models"
)

// Digest is the weekly stats bag for one user's landing, rendered into the
// Monday report mail. Totals and changes cover the last 7 days against the
// 7 days before.
type Digest struct {
	UserName            string    `json:"user_name"`
	LandingTitle        string    `json:"landing_title"`
	WeekStart           time.Time `json:"week_start"`
	WeekEnd             time.Time `json:"week_end"`
	TotalViews          int64     `json:"total_views"`
	TotalClicks         int64     `json:"total_clicks"`
	ViewsChangePercent  float64   `json:"views_change_percent"`
	ClicksChangePercent float64   `json:"clicks_change_percent"`
	TopLinks            []TopLink `json:"top_links"`
}

// HasActivity reports whether the digest is worth sending.
func (d *Digest) HasActivity() bool {
	return d.TotalViews > 0 || d.TotalClicks > 0
}

// MailFunc sends one rendered digest; utils.SendMail satisfies it.
type MailFunc func(to, subject, body string) error

// Link titles can carry markup pasted in by users; the digest is plain text
// so tags are stripped outright.
var titlePolicy = bluemonday.StrictPolicy()

// DigestSender builds and delivers weekly digests to every verified user
// owning a landing. Delivery is best-effort: a failed send is logged and
// the run moves on.
type DigestSender struct {
	db    *gorm.DB
	rp    *Reporter
	clock Clock
	send  MailFunc
}

// NewDigestSender builds a DigestSender delivering through send.
func NewDigestSender(db *gorm.DB, clock Clock, send MailFunc) *DigestSender {
	return &DigestSender{db: db, rp: NewReporter(db, clock), clock: clock, send: send}
}

// BuildDigest computes the weekly stats for one landing.
func (s *DigestSender) BuildDigest(landing *models.Landing) (*Digest, error) {
	today := Midnight(s.clock.Now())

	var linkIDs []string
	err := s.db.Model(&models.Link{}).
		Where("landing_id = ?", landing.ID).
		Pluck("id", &linkIDs).Error
	if err != nil {
		return nil, fmt.Errorf("load landing link ids: %w", err)
	}

	views, err := s.rp.WindowComparison(KindLandingView, []string{landing.ID}, 7)
	if err != nil {
		return nil, err
	}
	clicks, err := s.rp.WindowComparison(KindLinkClick, linkIDs, 7)
	if err != nil {
		return nil, err
	}
	top, err := s.rp.TopLinks(landing.ID, 7, 5)
	if err != nil {
		return nil, err
	}

	return &Digest{
		LandingTitle:        landing.Title,
		WeekStart:           today.AddDate(0, 0, -6),
		WeekEnd:             today,
		TotalViews:          views.Current,
		TotalClicks:         clicks.Current,
		ViewsChangePercent:  views.ChangePercent,
		ClicksChangePercent: clicks.ChangePercent,
		TopLinks:            top.Links,
	}, nil
}

// Run sends the digest to every verified user with a landing and returns
// how many were sent, skipped for lack of activity, or failed.
func (s *DigestSender) Run() (sent, skipped, failed int) {
	var users []models.User
	if err := s.db.Where("verified_at IS NOT NULL").Find(&users).Error; err != nil {
		logWarn("stats: weekly digest aborted, cannot list users: %v", err)
		return
	}

	for i := range users {
		user := &users[i]
		var landing models.Landing
		err := s.db.Where("user_id = ?", user.ID).Order("created_at asc").First(&landing).Error
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				logWarn("stats: weekly digest skipped user %d: %v", user.ID, err)
				failed++
			}
			continue
		}

		digest, err := s.BuildDigest(&landing)
		if err != nil {
			logWarn("stats: weekly digest build failed for user %d: %v", user.ID, err)
			failed++
			continue
		}
		if !digest.HasActivity() {
			skipped++
			continue
		}
		digest.UserName = user.FirstName

		if err := s.send(user.Email, "Your weekly stats report", RenderDigestText(digest)); err != nil {
			logWarn("stats: weekly digest send failed for %s: %v", user.Email, err)
			failed++
			continue
		}
		sent++
	}
	return
}

// RenderDigestText renders the plain-text mail body.
func RenderDigestText(d *Digest) string {
	var b strings.Builder
	name := d.UserName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Here is how your page did between %s and %s.\n\n",
		d.WeekStart.Format("02/01"), d.WeekEnd.Format("02/01"))
	fmt.Fprintf(&b, "Views:  %d (%s)\n", d.TotalViews, changeIndicator(d.ViewsChangePercent))
	fmt.Fprintf(&b, "Clicks: %d (%s)\n", d.TotalClicks, changeIndicator(d.ClicksChangePercent))

	if len(d.TopLinks) > 0 {
		b.WriteString("\nTop links of the week\n")
		for i, link := range d.TopLinks {
			title := strings.TrimSpace(titlePolicy.Sanitize(link.Title))
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(&b, "%d. %s - %d clicks\n", i+1, title, link.Clicks)
		}
	}

	b.WriteString("\nSee the full dashboard in your panel.\n")
	return b.String()
}

func changeIndicator(change float64) string {
	switch {
	case change > 0:
		return fmt.Sprintf("+%g%% vs last week", change)
	case change < 0:
		return fmt.Sprintf("%g%% vs last week", change)
	default:
		return "no change"
	}
}

// Package sources manages the configured scrape sources and decides which of
// them are due for a check.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vrsandeep/mango-scraper/internal/adapters"
	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
)

// MinCheckInterval is the shortest allowed check interval, in seconds.
const MinCheckInterval = 60

var (
	ErrUnknownSiteType = errors.New("unknown site type")
	ErrInvalidSource   = errors.New("invalid source")
)

// Input holds the admin-editable fields of a source.
type Input struct {
	MangaID       int64  `json:"manga_id"`
	SiteType      string `json:"site_type"`
	SourceURL     string `json:"source_url"`
	CheckInterval int    `json:"check_interval"`
	IsActive      *bool  `json:"is_active,omitempty"`
	AutoPublish   bool   `json:"auto_publish"`
	QualityCheck  *bool  `json:"quality_check,omitempty"`
}

type Manager struct {
	st  *store.Store
	now func() time.Time
}

func NewManager(st *store.Store) *Manager {
	return &Manager{st: st, now: time.Now}
}

// Validate checks an input against the adapter registry and the URL and
// interval rules.
func Validate(in Input) error {
	if in.MangaID <= 0 {
		return fmt.Errorf("%w: manga_id is required", ErrInvalidSource)
	}
	if !adapters.Has(in.SiteType) {
		return fmt.Errorf("%w: %q", ErrUnknownSiteType, in.SiteType)
	}
	u, err := url.Parse(in.SourceURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: source_url must be an absolute http(s) URL", ErrInvalidSource)
	}
	if in.CheckInterval < MinCheckInterval {
		return fmt.Errorf("%w: check_interval must be at least %d seconds", ErrInvalidSource, MinCheckInterval)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, in Input) (*models.ScrapeSource, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	src := &models.ScrapeSource{
		MangaID:       in.MangaID,
		SiteType:      in.SiteType,
		SourceURL:     in.SourceURL,
		CheckInterval: in.CheckInterval,
		IsActive:      true,
		AutoPublish:   in.AutoPublish,
		QualityCheck:  true,
	}
	if in.IsActive != nil {
		src.IsActive = *in.IsActive
	}
	if in.QualityCheck != nil {
		src.QualityCheck = *in.QualityCheck
	}
	if err := m.st.CreateSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

// Update rewrites the editable fields of a source. Nil pointer fields keep
// their stored value; the watermark is never touched here.
func (m *Manager) Update(ctx context.Context, id int64, in Input) (*models.ScrapeSource, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	src, err := m.st.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	src.MangaID = in.MangaID
	src.SiteType = in.SiteType
	src.SourceURL = in.SourceURL
	src.CheckInterval = in.CheckInterval
	src.AutoPublish = in.AutoPublish
	if in.IsActive != nil {
		src.IsActive = *in.IsActive
	}
	if in.QualityCheck != nil {
		src.QualityCheck = *in.QualityCheck
	}
	if err := m.st.UpdateSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (m *Manager) Get(ctx context.Context, id int64) (*models.ScrapeSource, error) {
	return m.st.GetSource(ctx, id)
}

func (m *Manager) List(ctx context.Context, activeOnly bool) ([]*models.ScrapeSource, error) {
	return m.st.ListSources(ctx, activeOnly)
}

// Deactivate stops a source from being checked without losing its history.
func (m *Manager) Deactivate(ctx context.Context, id int64) error {
	return m.st.SetSourceActive(ctx, id, false)
}

// Delete removes a source together with its queue items and check logs.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	return m.st.DeleteSource(ctx, id)
}

// DueSources returns the active sources that have never been checked or whose
// interval has elapsed at now.
func (m *Manager) DueSources(ctx context.Context, now time.Time) ([]*models.ScrapeSource, error) {
	active, err := m.st.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	due := make([]*models.ScrapeSource, 0, len(active))
	for _, src := range active {
		if src.IsDue(now) {
			due = append(due, src)
		}
	}
	return due, nil
}

// RecordCheck stores the outcome of one check. See store.RecordCheck for the
// watermark rules.
func (m *Manager) RecordCheck(ctx context.Context, sourceID int64, outcome models.CheckOutcome) (*models.CheckLog, error) {
	if outcome.CheckedAt.IsZero() {
		outcome.CheckedAt = m.now()
	}
	return m.st.RecordCheck(ctx, sourceID, outcome)
}

// History returns the most recent check logs of a source.
func (m *Manager) History(ctx context.Context, sourceID int64, limit int) ([]*models.CheckLog, error) {
	if _, err := m.st.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	return m.st.ListCheckLogs(ctx, models.LogFilter{SourceID: sourceID, Limit: limit})
}

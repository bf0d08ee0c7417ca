package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/philsgames/questtracker/config"
	"github.com/philsgames/questtracker/game/visibility"
	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Event is the payload for a new calendar entry.
type Event struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Hidden        bool   `json:"hidden"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     int64  `json:"timestamp"`
	Link          string `json:"link"`
}

// Calendar is the collaborator capability consumed by the sync engine.
// Every consumer must tolerate a nil Calendar: absence is a capability
// branch, not a failure.
type Calendar interface {
	CurrentDate(ctx context.Context) (visibility.Date, error)
	AddEvent(ctx context.Context, dateKey string, ev Event) error
	// RemoveLinkedEvent removes events correlated to the given id and
	// reports whether anything was removed.
	RemoveLinkedEvent(ctx context.Context, correlationID string) (bool, error)
	// RemoveEvent removes events by exact dateKey + title; fallback for
	// entries created before correlation ids existed.
	RemoveEvent(ctx context.Context, dateKey, title string) error
}

// DateKey renders the storage key for a date: "year-month-day" with the
// 0-indexed month, matching the parsed quest date representation.
func DateKey(d visibility.Date) string {
	return fmt.Sprintf("%d-%d-%d", d.Year, d.Month, d.Day)
}

// Service is the in-process world calendar, persisted through gorm.
type Service struct {
	db       *gorm.DB
	logger   *zap.Logger
	onChange func()
}

// NewService opens the world calendar, seeding the current date from
// the configured epoch when none is stored yet.
func NewService(db *gorm.DB, cfg config.CalendarConfig, logger *zap.Logger) (*Service, error) {
	svc := &Service{db: db, logger: logger}
	var wd model.WorldDate
	err := db.First(&wd, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		wd = model.WorldDate{ID: 1, Year: cfg.EpochYear, Month: cfg.EpochMonth, Day: cfg.EpochDay}
		if err := db.Create(&wd).Error; err != nil {
			return nil, fmt.Errorf("calendar: seed world date: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("calendar: load world date: %w", err)
	}
	return svc, nil
}

// OnDateChange registers a callback fired after SetCurrentDate commits.
// Used to trigger the visibility sweep without an explicit edit.
func (s *Service) OnDateChange(fn func()) { s.onChange = fn }

// CurrentDate returns the current world date.
func (s *Service) CurrentDate(ctx context.Context) (visibility.Date, error) {
	var wd model.WorldDate
	if err := s.db.WithContext(ctx).First(&wd, "id = ?", 1).Error; err != nil {
		return visibility.Date{}, fmt.Errorf("calendar: current date: %w", err)
	}
	return visibility.Date{Year: wd.Year, Month: wd.Month, Day: wd.Day}, nil
}

// SetCurrentDate advances (or rewinds) the world clock.
func (s *Service) SetCurrentDate(ctx context.Context, d visibility.Date) error {
	wd := model.WorldDate{ID: 1, Year: d.Year, Month: d.Month, Day: d.Day}
	if err := s.db.WithContext(ctx).Save(&wd).Error; err != nil {
		return fmt.Errorf("calendar: set date: %w", err)
	}
	s.logger.Info("world date changed",
		zap.Int("year", d.Year), zap.Int("month", d.Month), zap.Int("day", d.Day))
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}

// AddEvent stores a new calendar entry under dateKey.
func (s *Service) AddEvent(ctx context.Context, dateKey string, ev Event) error {
	record := &model.CalendarEvent{
		DateKey:       dateKey,
		Title:         ev.Title,
		Description:   ev.Description,
		Category:      ev.Category,
		Hidden:        ev.Hidden,
		CorrelationID: ev.CorrelationID,
		Timestamp:     ev.Timestamp,
		Link:          ev.Link,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("calendar: add event: %w", err)
	}
	return nil
}

// RemoveLinkedEvent deletes all events correlated to the given id.
func (s *Service) RemoveLinkedEvent(ctx context.Context, correlationID string) (bool, error) {
	if correlationID == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Delete(&model.CalendarEvent{})
	if res.Error != nil {
		return false, fmt.Errorf("calendar: remove linked event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RemoveEvent deletes events matching dateKey + title exactly.
func (s *Service) RemoveEvent(ctx context.Context, dateKey, title string) error {
	err := s.db.WithContext(ctx).
		Where("date_key = ? AND title = ?", dateKey, title).
		Delete(&model.CalendarEvent{}).Error
	if err != nil {
		return fmt.Errorf("calendar: remove event: %w", err)
	}
	return nil
}

// EventsOn lists the events stored under dateKey. Hidden events are
// filtered out unless includeHidden is set.
func (s *Service) EventsOn(ctx context.Context, dateKey string, includeHidden bool) ([]model.CalendarEvent, error) {
	q := s.db.WithContext(ctx).Where("date_key = ?", dateKey)
	if !includeHidden {
		q = q.Where("hidden = ?", false)
	}
	var events []model.CalendarEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}
	return events, nil
}

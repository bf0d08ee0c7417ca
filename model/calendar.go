package model

// CalendarEvent is one entry on the world calendar. Events created for
// a quest carry the quest's document id as CorrelationID so they can be
// removed without string matching; events predating correlation ids are
// matched by DateKey + Title instead.
type CalendarEvent struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	DateKey       string `gorm:"index:idx_event_date;size:32;not null" json:"date_key"` // "year-month-day", month 0-indexed
	Title         string `gorm:"size:255;not null" json:"title"`
	Description   string `gorm:"type:text" json:"description"`
	Category      string `gorm:"size:32" json:"category"`
	Hidden        bool   `json:"hidden"`
	CorrelationID string `gorm:"index:idx_event_corr;size:36" json:"correlation_id"`
	Timestamp     int64  `json:"timestamp"`
	Link          string `gorm:"size:255" json:"link"`
}

func (CalendarEvent) TableName() string { return "calendar_events" }

// WorldDate is the single-row current date of the world calendar.
// Month is 0-indexed, matching the parsed quest date representation.
type WorldDate struct {
	ID    int64 `gorm:"primaryKey" json:"id"`
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Day   int   `json:"day"`
}

func (WorldDate) TableName() string { return "world_date" }

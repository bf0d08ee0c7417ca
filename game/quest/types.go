package quest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Metadata bag addressing for quest records on a document.
const (
	Namespace = "quest-tracker"
	FlagKey   = "data"

	// SchemaVersion is stamped onto records by the read-side migration.
	// Version 1 records may carry the deprecated single "source" giver
	// and object-shaped (non-array) objectives/rewards/givers.
	SchemaVersion = 2
)

// Status is the quest lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusAvailable Status = "available"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further automatic status promotion applies.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Category groups quests in the log.
type Category string

const (
	CategoryMain     Category = "main"
	CategorySide     Category = "side"
	CategoryPersonal Category = "personal"
)

// Visibility is the policy governing the computed permission level.
type Visibility string

const (
	VisibilityAlways Visibility = "always"
	VisibilityGM     Visibility = "gm"
	VisibilityDate   Visibility = "date"
)

// Giver is one quest giver reference.
type Giver struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Img  string `json:"img"`
}

// Objective is one requirement within a quest. ID is unique within the
// quest; reordering preserves identity, not position.
type Objective struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Reward is one reward entry. A reward with a UUID renders as a
// linkable reference; otherwise name + image + quantity.
type Reward struct {
	Type     string `json:"type"`
	UUID     string `json:"uuid,omitempty"`
	Name     string `json:"name"`
	Img      string `json:"img"`
	Quantity int    `json:"quantity"`
	Revealed bool   `json:"revealed"`
}

// CompletedDate records when a quest was completed.
type CompletedDate struct {
	Date      string `json:"date"`
	Timestamp int64  `json:"timestamp"`
}

// Dates holds the quest's temporal fields. Start is a free-form date
// string; see visibility.ParseDate for the accepted formats.
type Dates struct {
	Created   int64          `json:"created"`
	Start     string         `json:"start"`
	Completed *CompletedDate `json:"completed"`
}

// Notes holds the GM-only and per-player note bodies.
type Notes struct {
	GM     string `json:"gm,omitempty"`
	Player string `json:"player,omitempty"`
}

// Quest is the tracked narrative task record, stored as metadata on a
// document. ID mirrors the owning document's id and is not persisted
// inside the bag.
type Quest struct {
	ID               string      `json:"-"`
	Type             string      `json:"type"`
	Version          int         `json:"version"`
	Title            string      `json:"title"`
	Category         Category    `json:"category"`
	Description      string      `json:"description"`
	Source           *Giver      `json:"source,omitempty"` // deprecated, migrated into Givers
	Givers           []Giver     `json:"givers"`
	Status           Status      `json:"status"`
	Visibility       Visibility  `json:"visibility"`
	VisibleTo        []string    `json:"visibleTo"`
	SyncWithCalendar bool        `json:"syncWithCalendar"`
	Objectives       []Objective `json:"objectives"`
	Rewards          []Reward    `json:"rewards"`
	XP               int         `json:"xp"`
	Gold             int         `json:"gold"`
	Sort             float64     `json:"sort"`
	Notes            Notes       `json:"notes"`
	Dates            Dates       `json:"dates"`
}

// DefaultData is the schema-default quest record as a mergeable map.
func DefaultData() map[string]interface{} {
	return map[string]interface{}{
		"type":             "quest",
		"version":          SchemaVersion,
		"title":            "New Quest",
		"category":         string(CategoryMain),
		"description":      "",
		"givers":           []interface{}{},
		"status":           string(StatusDraft),
		"visibility":       string(VisibilityAlways),
		"visibleTo":        []interface{}{},
		"syncWithCalendar": false,
		"objectives":       []interface{}{},
		"rewards":          []interface{}{},
		"xp":               0,
		"gold":             0,
		"sort":             0,
		"dates": map[string]interface{}{
			"created": nil,
			"start":   "",
		},
	}
}

// rawQuest defers the array-shaped fields so object-shaped legacy data
// ({"0": {...}, "1": {...}}) can be coerced before decoding.
type rawQuest struct {
	Quest
	Givers     json.RawMessage `json:"givers"`
	Objectives json.RawMessage `json:"objectives"`
	Rewards    json.RawMessage `json:"rewards"`
	VisibleTo  json.RawMessage `json:"visibleTo"`
}

// Decode unmarshals a quest record from its metadata bag value and runs
// the one-shot schema migration: object-shaped lists are coerced to
// arrays and a non-empty deprecated "source" becomes the first giver
// when the giver list is empty. The result is stamped SchemaVersion.
func Decode(id string, raw json.RawMessage) (*Quest, error) {
	var rq rawQuest
	if err := json.Unmarshal(raw, &rq); err != nil {
		return nil, fmt.Errorf("quest: decode %s: %w", id, err)
	}
	q := rq.Quest
	q.ID = id

	if err := coerceList(rq.Givers, &q.Givers); err != nil {
		return nil, fmt.Errorf("quest: decode %s givers: %w", id, err)
	}
	if err := coerceList(rq.Objectives, &q.Objectives); err != nil {
		return nil, fmt.Errorf("quest: decode %s objectives: %w", id, err)
	}
	if err := coerceList(rq.Rewards, &q.Rewards); err != nil {
		return nil, fmt.Errorf("quest: decode %s rewards: %w", id, err)
	}
	if err := coerceList(rq.VisibleTo, &q.VisibleTo); err != nil {
		return nil, fmt.Errorf("quest: decode %s visibleTo: %w", id, err)
	}

	if len(q.Givers) == 0 && q.Source != nil && q.Source.UUID != "" {
		q.Givers = []Giver{*q.Source}
	}
	q.Version = SchemaVersion
	return &q, nil
}

// coerceList decodes raw into out, accepting either a JSON array or a
// legacy object keyed by stringified indices (decoded in index order).
func coerceList[T any](raw json.RawMessage, out *[]T) error {
	if len(raw) == 0 || string(raw) == "null" {
		*out = nil
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		if aErr != nil || bErr != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	items := make([]T, 0, len(keys))
	for _, k := range keys {
		var item T
		if err := json.Unmarshal(obj[k], &item); err != nil {
			return err
		}
		items = append(items, item)
	}
	*out = items
	return nil
}

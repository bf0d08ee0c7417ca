package visibility

import (
	"regexp"
	"strconv"

	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/model"
)

// Date is a calendar date. Month is 0-indexed, matching the parsed
// representation used for calendar event keys.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Composite collapses the date into one integer for total ordering.
func (d Date) Composite() int {
	return d.Year*10000 + d.Month*100 + d.Day
}

var (
	yearFirstRe = regexp.MustCompile(`^(\d+)[.\-/](\d{1,2})[.\-/](\d{1,2})$`)
	yearLastRe  = regexp.MustCompile(`^(\d{1,2})[.\-/]\s*(\d{1,2})[.\-/]\s*(\d+)$`)
)

// ParseDate parses a free-form quest date string. Two literal formats
// are accepted, first match wins: Y-M-D (year first, unbounded year
// digits) and D.M.Y (year last). Separators may be ".", "-" or "/".
// The resulting month is 0-indexed.
func ParseDate(s string) (Date, bool) {
	if s == "" {
		return Date{}, false
	}
	if m := yearFirstRe.FindStringSubmatch(s); m != nil {
		return Date{
			Year:  atoi(m[1]),
			Month: atoi(m[2]) - 1,
			Day:   atoi(m[3]),
		}, true
	}
	if m := yearLastRe.FindStringSubmatch(s); m != nil {
		return Date{
			Year:  atoi(m[3]),
			Month: atoi(m[2]) - 1,
			Day:   atoi(m[1]),
		}, true
	}
	return Date{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Result is the resolver's decision. AutoPromote is set when the quest
// should additionally transition from available to active; the caller applies
// it as a separate idempotent write.
type Result struct {
	Level       model.PermissionLevel
	AutoPromote bool
}

// Resolve maps a quest's visibility policy and the current calendar
// date to a default permission level. today is nil when no calendar
// collaborator is present; date-gated quests then fail safe to the most
// restrictive level. Resolve has no side effects.
func Resolve(q *quest.Quest, today *Date) Result {
	switch q.Visibility {
	case quest.VisibilityAlways:
		return Result{Level: model.PermissionObserver}
	case quest.VisibilityGM:
		return Result{Level: model.PermissionNone}
	case quest.VisibilityDate:
		start, ok := ParseDate(q.Dates.Start)
		if !ok || today == nil {
			return Result{Level: model.PermissionNone}
		}
		if today.Composite() >= start.Composite() {
			return Result{
				Level:       model.PermissionObserver,
				AutoPromote: q.Status == quest.StatusAvailable,
			}
		}
		return Result{Level: model.PermissionNone}
	default:
		return Result{Level: model.PermissionNone}
	}
}

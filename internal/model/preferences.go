package model

import (
	"errors"
	"fmt"
	"time"
)

// Preferences — настройки уведомлений пользователя. Хранятся JSON-ом поверх значений по умолчанию,
// поэтому поля категорий — указатели: nil означает «не задано».
type Preferences struct {
	Email           bool   `json:"email"`
	Push            bool   `json:"push"`
	SMS             bool   `json:"sms"`
	Applications    *bool  `json:"applications,omitempty"`
	Messages        *bool  `json:"messages,omitempty"`
	System          *bool  `json:"system,omitempty"`
	Marketing       *bool  `json:"marketing,omitempty"`
	Reminders       *bool  `json:"reminders,omitempty"`
	QuietHoursStart string `json:"quiet_hours_start"`
	QuietHoursEnd   string `json:"quiet_hours_end"`
	Timezone        string `json:"timezone"`
}

func boolPtr(b bool) *bool { return &b }

// DefaultPreferences возвращает настройки нового пользователя.
func DefaultPreferences() Preferences {
	return Preferences{
		Email:           true,
		Push:            true,
		SMS:             false,
		Applications:    boolPtr(true),
		Messages:        boolPtr(true),
		System:          boolPtr(true),
		Marketing:       boolPtr(false),
		Reminders:       boolPtr(true),
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "08:00",
		Timezone:        "UTC",
	}
}

// AllowsCategory: system и security проходят всегда, marketing только при явном согласии,
// остальные пока явно не выключены.
func (p Preferences) AllowsCategory(c Category) bool {
	switch c {
	case CategorySystem, CategorySecurity:
		return true
	case CategoryMarketing:
		return p.Marketing != nil && *p.Marketing
	case CategoryApplication:
		return p.Applications == nil || *p.Applications
	case CategoryMessage:
		return p.Messages == nil || *p.Messages
	case CategoryReminder:
		return p.Reminders == nil || *p.Reminders
	default:
		return true
	}
}

// Location возвращает часовой пояс пользователя; при ошибке UTC.
func (p Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate проверяет формат тихих часов и часовой пояс.
func (p Preferences) Validate() error {
	if _, err := ParseClock(p.QuietHoursStart); err != nil {
		return fmt.Errorf("quiet_hours_start: %w", err)
	}
	if _, err := ParseClock(p.QuietHoursEnd); err != nil {
		return fmt.Errorf("quiet_hours_end: %w", err)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

var errClockFormat = errors.New("expected HH:MM")

// ParseClock разбирает "HH:MM" в минуты от полуночи.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, errClockFormat
	}
	var h, m int
	for i, c := range []byte{s[0], s[1], s[3], s[4]} {
		if c < '0' || c > '9' {
			return 0, errClockFormat
		}
		d := int(c - '0')
		if i < 2 {
			h = h*10 + d
		} else {
			m = m*10 + d
		}
	}
	if h > 23 || m > 59 {
		return 0, errClockFormat
	}
	return h*60 + m, nil
}

// InQuietHours сообщает, попадает ли now (в часовом поясе пользователя) в [start, end).
// Если start > end, окно переходит через полночь.
func (p Preferences) InQuietHours(now time.Time) bool {
	start, err1 := ParseClock(p.QuietHoursStart)
	end, err2 := ParseClock(p.QuietHoursEnd)
	if err1 != nil || err2 != nil || start == end {
		return false
	}
	local := now.In(p.Location())
	cur := local.Hour()*60 + local.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

// QuietHoursEndAfter возвращает ближайший момент окончания тихих часов после now.
func (p Preferences) QuietHoursEndAfter(now time.Time) time.Time {
	end, err := ParseClock(p.QuietHoursEnd)
	if err != nil {
		return now
	}
	local := now.In(p.Location())
	t := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, local.Location())
	if !t.After(local) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the textual format accepted for birth dates (dd-MM-yyyy).
const DateLayout = "02-01-2006"

// Date is a calendar date without time of day, stored as UTC midnight.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateFromTime truncates t to its UTC calendar date.
func DateFromTime(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an optional birth date. An empty or blank string yields
// nil with no error; anything else that does not match DateLayout fails
// with ErrInvalidDate.
func ParseDate(s string) (*Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, ErrInvalidDate
	}
	d := DateFromTime(t)
	return &d, nil
}

// Time returns the date as UTC midnight.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string { return d.t.Format(DateLayout) }

// YearsAt returns the number of full years elapsed between d and now.
func (d Date) YearsAt(now time.Time) int {
	now = now.UTC()
	years := now.Year() - d.t.Year()
	if now.Month() < d.t.Month() || (now.Month() == d.t.Month() && now.Day() < d.t.Day()) {
		years--
	}
	return years
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	if parsed != nil {
		*d = *parsed
	}
	return nil
}

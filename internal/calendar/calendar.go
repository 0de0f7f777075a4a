// Package calendar does business-day arithmetic for stage and SLA deadlines.
// Saturdays, Sundays and configured holidays are not business days.
package calendar

import (
	"fmt"
	"time"
)

// Calendar is an immutable set of holidays. The zero value knows no
// holidays and only skips weekends.
type Calendar struct {
	holidays map[string]struct{}
}

// New builds a calendar from YYYY-MM-DD holiday dates.
func New(holidays []string) (*Calendar, error) {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d, err := time.Parse(time.DateOnly, h)
		if err != nil {
			return nil, fmt.Errorf("calendar: holiday %q: %w", h, err)
		}
		c.holidays[d.Format(time.DateOnly)] = struct{}{}
	}
	return c, nil
}

// IsBusinessDay reports whether t falls on a business day.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if c == nil || c.holidays == nil {
		return true
	}
	_, holiday := c.holidays[t.Format(time.DateOnly)]
	return !holiday
}

// AddBusinessDays moves start forward by n business days, keeping the time
// of day. n <= 0 returns start unchanged.
func (c *Calendar) AddBusinessDays(start time.Time, n int) time.Time {
	t := start
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if c.IsBusinessDay(t) {
			n--
		}
	}
	return t
}

// BusinessDaysBetween counts the business days after from up to and
// including to. It is negative when to precedes from.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	from, to = dateOf(from), dateOf(to)
	if to.Before(from) {
		return -c.BusinessDaysBetween(to, from)
	}
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

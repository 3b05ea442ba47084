package model

import (
	"errors"
	"fmt"
	"time"
)

// Period is the aggregation granularity for metrics snapshots.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ErrInvalidPeriod is returned when a period value is not one of day/week/month/year.
var ErrInvalidPeriod = errors.New("invalid period")

// Periods lists every supported granularity, broadest last.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth, PeriodYear}

// ParsePeriod validates and converts a raw string into a Period.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

// Valid reports whether p is a supported granularity.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

func (p Period) String() string { return string(p) }

// DateOf truncates t to a UTC calendar date (midnight).
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BucketDate returns the canonical start date of the period instance
// containing ref: the day itself, the Monday of the week, the first of the
// month, or January 1st.
func (p Period) BucketDate(ref time.Time) time.Time {
	d := DateOf(ref)
	switch p {
	case PeriodDay:
		return d
	case PeriodWeek:
		// Monday-based week; Go's Sunday is 0.
		offset := int(d.Weekday()) - 1
		if offset < 0 {
			offset = 6
		}
		return d.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		return time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}

// Range returns the inclusive [start, end] date range of the period instance
// containing ref.
func (p Period) Range(ref time.Time) (time.Time, time.Time) {
	start := p.BucketDate(ref)
	switch p {
	case PeriodDay:
		return start, start
	case PeriodWeek:
		return start, start.AddDate(0, 0, 6)
	case PeriodMonth:
		return start, start.AddDate(0, 1, -1)
	case PeriodYear:
		return start, start.AddDate(1, 0, -1)
	}
	return start, start
}

// Previous shifts a bucket date back by exactly one unit of the period.
// The shift is one calendar unit, not the range's day count, so months of
// unequal length land on the prior month's first day.
func (p Period) Previous(bucket time.Time) time.Time {
	switch p {
	case PeriodDay:
		return bucket.AddDate(0, 0, -1)
	case PeriodWeek:
		return bucket.AddDate(0, 0, -7)
	case PeriodMonth:
		return bucket.AddDate(0, -1, 0)
	case PeriodYear:
		return bucket.AddDate(-1, 0, 0)
	}
	return bucket
}

// Copyright (c) 2024 BVK Chaitanya

// Package timerange defines the calendar periods used to filter trades.
package timerange

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Range is a half-open time interval [Begin, End). Zero Begin or End leaves
// that side unbounded.
type Range struct {
	Begin, End time.Time
}

func (r *Range) IsZero() bool {
	return r.Begin.IsZero() && r.End.IsZero()
}

func (r *Range) InRange(v time.Time) bool {
	if !r.Begin.IsZero() && v.Before(r.Begin) {
		return false
	}
	if !r.End.IsZero() && !v.Before(r.End) {
		return false
	}
	return true
}

func (r *Range) String() string {
	if r.IsZero() {
		return "lifetime"
	}
	return fmt.Sprintf("%s..%s", r.Begin.Format(time.DateOnly), r.End.Format(time.DateOnly))
}

// Periods lists the names accepted by Period.
var Periods = []string{"today", "yesterday", "week", "last-week", "month", "last-month", "year", "last-year", "lifetime"}

// Period returns the named calendar period containing now, or the one before
// it for the last- names. Weeks start on Sunday.
func Period(name string, now time.Time, zone *time.Location) (*Range, error) {
	if zone == nil {
		zone = time.Local
	}
	now = now.In(zone)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, zone)
	week := today.AddDate(0, 0, -int(now.Weekday()))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, zone)
	year := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, zone)

	switch strings.ToLower(name) {
	case "today":
		return &Range{Begin: today, End: today.AddDate(0, 0, 1)}, nil
	case "yesterday":
		return &Range{Begin: today.AddDate(0, 0, -1), End: today}, nil
	case "week":
		return &Range{Begin: week, End: week.AddDate(0, 0, 7)}, nil
	case "last-week":
		return &Range{Begin: week.AddDate(0, 0, -7), End: week}, nil
	case "month":
		return &Range{Begin: month, End: month.AddDate(0, 1, 0)}, nil
	case "last-month":
		return &Range{Begin: month.AddDate(0, -1, 0), End: month}, nil
	case "year":
		return &Range{Begin: year, End: year.AddDate(1, 0, 0)}, nil
	case "last-year":
		return &Range{Begin: year.AddDate(-1, 0, 0), End: year}, nil
	case "", "lifetime", "all":
		return &Range{}, nil
	}
	return nil, fmt.Errorf("unknown period %q (want one of %s): %w", name, strings.Join(Periods, ", "), os.ErrInvalid)
}

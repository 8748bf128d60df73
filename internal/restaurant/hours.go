// Package restaurant answers whether a restaurant is taking orders right now.
package restaurant

import (
	"fmt"
	"sort"
	"time"
)

// Status is what checkout needs to know before letting an order through.
type Status struct {
	RestaurantID string `json:"restaurantId"`
	Open         bool   `json:"open"`
	NextOpening  string `json:"nextOpening,omitempty"`
}

// Window is one opening period, in minutes after local midnight. A window
// whose close is not after its open runs past midnight.
type Window struct {
	Day         time.Weekday
	OpensMinute int
	CloseMinute int
}

func (w Window) overnight() bool { return w.CloseMinute <= w.OpensMinute }

// contains reports whether local time t falls inside w.
func (w Window) contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	day := t.Weekday()
	if !w.overnight() {
		return day == w.Day && minute >= w.OpensMinute && minute < w.CloseMinute
	}
	if day == w.Day && minute >= w.OpensMinute {
		return true
	}
	return day == (w.Day+1)%7 && minute < w.CloseMinute
}

const (
	notAccepting = "Not accepting orders right now"
	noHours      = "No opening hours have been set"
)

// Evaluate computes the status at now, interpreted in loc.
func Evaluate(restaurantID string, accepting bool, hours []Window, loc *time.Location, now time.Time) Status {
	st := Status{RestaurantID: restaurantID}
	if !accepting {
		st.NextOpening = notAccepting
		return st
	}

	if len(hours) == 0 {
		st.NextOpening = noHours
		return st
	}

	local := now.In(loc)
	for _, w := range hours {
		if w.contains(local) {
			st.Open = true
			return st
		}
	}
	st.NextOpening = nextOpening(hours, local)
	return st
}

func nextOpening(hours []Window, local time.Time) string {
	if len(hours) == 0 {
		return ""
	}
	sorted := append([]Window(nil), hours...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		return sorted[i].OpensMinute < sorted[j].OpensMinute
	})

	minute := local.Hour()*60 + local.Minute()
	for offset := 0; offset < 8; offset++ {
		day := (local.Weekday() + time.Weekday(offset)) % 7
		for _, w := range sorted {
			if w.Day != day {
				continue
			}
			if offset == 0 && w.OpensMinute <= minute {
				continue
			}
			return fmt.Sprintf("Opens %s at %02d:%02d", dayLabel(offset, day), w.OpensMinute/60, w.OpensMinute%60)
		}
	}
	return ""
}

func dayLabel(offset int, day time.Weekday) string {
	switch offset {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return day.String()
	}
}

// Package fisbtime reconstructs full UTC timestamps from the partial time
// fields FIS-B products carry: bare hour/minute pairs, day-hour-minute
// strings, and one or two digit years. All results are UTC.
package fisbtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDateOutOfRange reports a day-of-month more than 10 days from the
	// current date.
	ErrDateOutOfRange = errors.New("fisbtime: date too far out of range")

	// ErrBadYear reports a year field outside its digit range.
	ErrBadYear = errors.New("fisbtime: bad year value")
)

// ISO8601 is the timestamp layout used in emitted records.
const ISO8601 = "2006-01-02T15:04:05Z"

// CleanText trims the trailing whitespace FIS-B text products carry on each
// line and at the end of the report.
func CleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\r\n")
}

// FromHourMinute guesses the full date of an hour/minute pair relative to
// the reception time. The candidate dates are the reception date and one
// day either side; the closest wins. A tie between past and future goes to
// the past when favorPast is set.
func FromHourMinute(rcvd time.Time, hour, minute int, favorPast bool) time.Time {
	rcvd = rcvd.UTC().Truncate(time.Minute)

	now := time.Date(rcvd.Year(), rcvd.Month(), rcvd.Day(), hour, minute, 0, 0, time.UTC)
	plus := now.AddDate(0, 0, 1)
	minus := now.AddDate(0, 0, -1)

	diffNow := absDuration(rcvd.Sub(now))
	diffPlus := absDuration(rcvd.Sub(plus))
	diffMinus := absDuration(rcvd.Sub(minus))

	winner := now
	min := diffNow
	if diffPlus < min {
		winner, min = plus, diffPlus
	}
	if diffMinus < min {
		winner = minus
	}

	if !winner.Equal(now) && diffPlus == diffMinus {
		if favorPast {
			winner = minus
		} else {
			winner = plus
		}
	}

	return winner
}

// FromDayHourMinute converts an FAA "ddhhmm" or "ddhh" string to a full
// timestamp, assuming the date falls within 10 days of the reception date.
// Hour 24 rolls to 00:00 of the next day, as forecast valid periods use it.
func FromDayHourMinute(rcvd time.Time, faaStr string) (time.Time, error) {
	if len(faaStr) != 4 && len(faaStr) != 6 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateOutOfRange, faaStr)
	}

	day, err := strconv.Atoi(faaStr[0:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("fisbtime: %q: %w", faaStr, err)
	}
	hour, err := strconv.Atoi(faaStr[2:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("fisbtime: %q: %w", faaStr, err)
	}
	minute := 0
	if len(faaStr) == 6 {
		minute, err = strconv.Atoi(faaStr[4:6])
		if err != nil {
			return time.Time{}, fmt.Errorf("fisbtime: %q: %w", faaStr, err)
		}
	}

	rcvd = rcvd.UTC()
	current := time.Date(rcvd.Year(), rcvd.Month(), rcvd.Day(), 0, 0, 0, 0, time.UTC)

	if day == current.Day() {
		return withHour24(current, hour, minute), nil
	}

	// Walk outward a day at a time, forward first, since the target is
	// usually near the current day.
	forward, backward := current, current
	for i := 0; i < 10; i++ {
		forward = forward.AddDate(0, 0, 1)
		if forward.Day() == day {
			return withHour24(forward, hour, minute), nil
		}
		backward = backward.AddDate(0, 0, -1)
		if backward.Day() == day {
			return withHour24(backward, hour, minute), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: current day %d, faa %q", ErrDateOutOfRange, current.Day(), faaStr)
}

// withHour24 applies an FAA hour to a date, rolling hour 24 to the next day.
func withHour24(date time.Time, hour, minute int) time.Time {
	if hour == 24 {
		date = date.AddDate(0, 0, 1)
		hour = 0
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC)
}

// ComponentsReferenced builds a timestamp from month/day/hour/minute using
// the reference time to pick the year. The result's year is the reference
// year or one either side, whichever lands closest; this matters for dates
// near the year boundary.
func ComponentsReferenced(reference time.Time, month, day, hour, minute int) time.Time {
	reference = reference.UTC()
	year := reference.Year()

	best := time.Time{}
	var bestDiff time.Duration
	for _, y := range []int{year - 1, year + 1, year} {
		t := time.Date(y, time.Month(month), day, hour, minute, 0, 0, time.UTC)
		diff := absDuration(reference.Sub(t))
		if best.IsZero() || diff <= bestDiff {
			best, bestDiff = t, diff
		}
	}

	return best
}

// SingleDigitYear expands a one digit FAA year. Up to 4 years ahead of the
// current year counts as future, otherwise past.
func SingleDigitYear(currentYear, supplied int) (int, error) {
	if supplied < 0 || supplied > 9 {
		return 0, fmt.Errorf("%w: single digit %d", ErrBadYear, supplied)
	}

	diff := supplied - currentYear%10
	switch {
	case diff >= 5:
		diff -= 10
	case diff <= -6:
		diff += 10
	}
	return currentYear + diff, nil
}

// DoubleDigitYear expands a two digit FAA year. Up to 49 years ahead of the
// current year counts as future, otherwise past.
func DoubleDigitYear(currentYear, supplied int) (int, error) {
	if supplied < 0 || supplied > 99 {
		return 0, fmt.Errorf("%w: double digit %d", ErrBadYear, supplied)
	}

	diff := supplied - currentYear%100
	switch {
	case diff >= 50:
		diff -= 100
	case diff <= -60:
		diff += 100
	}
	return currentYear + diff, nil
}

// FromNOTAMString converts a NOTAM "yymmddhhmm" field to a timestamp.
func FromNOTAMString(currentYear int, faaStr string) (time.Time, error) {
	if len(faaStr) != 10 {
		return time.Time{}, fmt.Errorf("%w: notam time %q", ErrDateOutOfRange, faaStr)
	}

	fields := make([]int, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(faaStr[i*2 : i*2+2])
		if err != nil {
			return time.Time{}, fmt.Errorf("fisbtime: notam time %q: %w", faaStr, err)
		}
		fields[i] = v
	}

	year, err := DoubleDigitYear(currentYear, fields[0])
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(year, time.Month(fields[1]), fields[2], fields[3], fields[4], 0, 0, time.UTC), nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

package aggregation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRange marks a missing, unparseable or non-increasing time range.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrInvalidGranularity marks an unsupported granularity or week-start value.
	ErrInvalidGranularity = errors.New("invalid granularity")

	// ErrTooManyBuckets is returned when a range would produce more buckets than allowed.
	ErrTooManyBuckets = errors.New("too many buckets for range")

	// ErrEmptyGranularity signals records were offered to an empty bucket sequence.
	// BuildBuckets never yields that for a valid range; treat it as an internal fault.
	ErrEmptyGranularity = errors.New("no buckets to aggregate into")
)

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Validate rejects zero instants and ranges where Start is not before End.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidRange)
	}
	return nil
}

// Contains reports whether t falls inside [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Granularity is the calendar unit buckets are aligned to.
type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// DefaultGranularity applies when a caller does not name one.
const DefaultGranularity = Day

// ParseGranularity accepts hour, day, week or month (case-insensitive).
// An empty string yields DefaultGranularity.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return DefaultGranularity, nil
	case Hour, Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q (must be hour, day, week, or month)", ErrInvalidGranularity, s)
	}
}

// DefaultWeekStart is ISO-8601 Monday. It is never taken from ambient locale state.
const DefaultWeekStart = time.Monday

// ParseWeekStart accepts an English weekday name; empty yields DefaultWeekStart.
func ParseWeekStart(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultWeekStart, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown week start %q", ErrInvalidGranularity, s)
}

// Calendar carries the caller's reference frame for bucket alignment.
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday

	// MaxBuckets caps the number of buckets one range may produce. 0 disables the cap.
	MaxBuckets int
}

// DefaultCalendar is UTC with Monday week starts and no bucket cap.
func DefaultCalendar() Calendar {
	return Calendar{Location: time.UTC, WeekStart: DefaultWeekStart}
}

// Bucket is one calendar-aligned window with its reduced value.
type Bucket struct {
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Value       decimal.Decimal `json:"value"`
	Unit        string          `json:"unit,omitempty"`
	SampleCount int64           `json:"sample_count"`
}

// Window returns the bucket's [StartTime, EndTime) interval.
func (b Bucket) Window() TimeRange {
	return TimeRange{Start: b.StartTime, End: b.EndTime}
}

package aggregation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BuildBuckets partitions rng into calendar-aligned windows of granularity g in cal's zone.
//
// Boundaries are computed with civil-date arithmetic (time.Date normalization), not
// fixed durations, so a Day bucket spans 23 or 25 hours across a DST change and a
// Month bucket spans 28-31 days. The first and last buckets are clipped to rng.
// A range with Start == End yields no buckets and no error. A civil day the zone
// skipped entirely (Pacific/Apia, 2011-12-30) yields no bucket.
func BuildBuckets(rng TimeRange, g Granularity, cal Calendar) ([]Bucket, error) {
	if rng.Start.IsZero() || rng.End.IsZero() {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if rng.End.Before(rng.Start) {
		return nil, fmt.Errorf("%w: end must not be before start", ErrInvalidRange)
	}
	if rng.Start.Equal(rng.End) {
		return nil, nil
	}

	loc := cal.Location
	if loc == nil {
		loc = time.UTC
	}

	next, err := newStepper(rng.Start, g, loc, cal.WeekStart)
	if err != nil {
		return nil, err
	}

	var buckets []Bucket
	lower := next()
	for lower.Before(rng.End) {
		upper := next()
		for skips := 0; !upper.After(lower); skips++ {
			if skips == maxSkippedBoundaries {
				return nil, fmt.Errorf("bucket boundary did not advance at %s", lower.Format(time.RFC3339))
			}
			upper = next()
		}

		if upper.After(rng.Start) {
			if cal.MaxBuckets > 0 && len(buckets) >= cal.MaxBuckets {
				return nil, fmt.Errorf("%w: more than %d %s buckets", ErrTooManyBuckets, cal.MaxBuckets, g)
			}
			buckets = append(buckets, Bucket{
				StartTime: laterOf(lower, rng.Start).In(loc),
				EndTime:   earlierOf(upper, rng.End).In(loc),
				Value:     decimal.Zero,
			})
		}
		lower = upper
	}

	return buckets, nil
}

// maxSkippedBoundaries bounds how many collapsed boundaries are stepped over
// before giving up; real zone transitions never skip more than one.
const maxSkippedBoundaries = 3

// newStepper returns a generator of successive boundaries. The first call yields
// the aligned boundary at or before start; each later call yields the next one.
func newStepper(start time.Time, g Granularity, loc *time.Location, weekStart time.Weekday) (func() time.Time, error) {
	local := start.In(loc)

	switch g {
	case Hour:
		cur := floorHour(local)
		first := true
		return func() time.Time {
			if first {
				first = false
				return cur
			}
			cur = nextHour(cur, loc)
			return cur
		}, nil
	case Day, Week, Month:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}

	// Civil components are kept unnormalized and re-resolved through time.Date on
	// every step, so a boundary that lands in a DST gap never shifts later ones.
	year, month, day := local.Date()
	var stepDays, stepMonths int
	switch g {
	case Day:
		stepDays = 1
	case Week:
		day -= (int(local.Weekday()) - int(weekStart) + 7) % 7
		stepDays = 7
	case Month:
		day = 1
		stepMonths = 1
	}

	first := true
	return func() time.Time {
		if first {
			first = false
		} else {
			day += stepDays
			month += time.Month(stepMonths)
		}
		return startOfDay(year, month, day, loc)
	}, nil
}

// startOfDay returns the first instant of the civil day.
func startOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	return civilInstant(year, month, day, 0, loc)
}

// nextHour returns the start of the local hour after cur. Elapsed-hour stepping
// keeps a repeated fall-back hour as its own bucket; when that lands off the
// top of a local hour (half-hour transitions) the next civil hour is used.
func nextHour(cur time.Time, loc *time.Location) time.Time {
	if nxt := floorHour(cur.Add(time.Hour)); nxt.After(cur) {
		if _, m, s := nxt.Clock(); m == 0 && s == 0 {
			return nxt
		}
	}

	y, mo, d := cur.Date()
	if nxt := civilInstant(y, mo, d, cur.Hour()+1, loc); nxt.After(cur) {
		return nxt
	}
	return cur.Add(time.Hour)
}

// civilInstant resolves the wall-clock time y-mo-d h:00 in loc. A wall time inside
// a transition gap does not exist; the hour then begins at the transition, which
// is where the zone that time.Date picked ends (or starts).
func civilInstant(year int, month time.Month, day, hour int, loc *time.Location) time.Time {
	t := time.Date(year, month, day, hour, 0, 0, 0, loc)

	want := time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	if wall.Equal(want) {
		return t
	}

	start, end := t.ZoneBounds()
	if wall.Before(want) {
		if !end.IsZero() {
			return end.In(loc)
		}
		return t
	}
	if !start.IsZero() {
		return start.In(loc)
	}
	return t
}

// floorHour truncates to the top of the local hour. Working from the local clock
// rather than time.Truncate keeps half-hour offset zones aligned to local :00.
func floorHour(local time.Time) time.Time {
	_, m, s := local.Clock()
	return local.Add(-time.Duration(m)*time.Minute -
		time.Duration(s)*time.Second -
		time.Duration(local.Nanosecond()))
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

package aggregation

import (
	"fmt"
	"iter"
	"sort"
	"time"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/aevon-lab/healthquery/internal/core/metric"
	"github.com/shopspring/decimal"
)

// Accumulation is the running state of one bucket.
type Accumulation struct {
	Sum   decimal.Decimal
	Count int64
}

// Reducer defines how a metric kind folds values and finalizes a bucket.
// To add a kind: implement Reducer and register it in Reducers.
type Reducer interface {
	// Fold adds one record value to the running state.
	Fold(acc Accumulation, v decimal.Decimal) Accumulation

	// Result turns the running state into the bucket's reported value.
	// A zero-count bucket must report decimal.Zero.
	Result(acc Accumulation) decimal.Decimal
}

// Reducers maps every metric kind to its reduction.
var Reducers = map[metric.Kind]Reducer{
	metric.Cumulative: sumReducer{},
	metric.Discrete:   meanReducer{},
}

// sumReducer reports the total of the bucket's values.
type sumReducer struct{}

func (sumReducer) Fold(acc Accumulation, v decimal.Decimal) Accumulation {
	return Accumulation{Sum: acc.Sum.Add(v), Count: acc.Count + 1}
}

func (sumReducer) Result(acc Accumulation) decimal.Decimal { return acc.Sum }

// meanReducer reports sum / count, or zero for an empty bucket.
type meanReducer struct{}

func (meanReducer) Fold(acc Accumulation, v decimal.Decimal) Accumulation {
	return Accumulation{Sum: acc.Sum.Add(v), Count: acc.Count + 1}
}

func (meanReducer) Result(acc Accumulation) decimal.Decimal {
	if acc.Count == 0 {
		return decimal.Zero
	}
	return acc.Sum.Div(decimal.NewFromInt(acc.Count))
}

// Result is the output of one aggregation.
type Result struct {
	Buckets []Bucket

	// Skipped counts records whose start time fell outside every bucket.
	// Diagnostic only; those records contribute to no bucket.
	Skipped int64
}

// Accumulator assigns records to buckets and reduces them in a single pass.
// Records may arrive in any order. It is not safe for concurrent use; one
// Accumulator belongs to one aggregation call.
type Accumulator struct {
	buckets []Bucket
	state   []Accumulation
	reducer Reducer
	skipped int64
}

// NewAccumulator prepares an accumulator over an ordered bucket template.
func NewAccumulator(buckets []Bucket, kind metric.Kind) (*Accumulator, error) {
	reducer, ok := Reducers[kind]
	if !ok {
		return nil, fmt.Errorf("no reducer for metric kind %q", kind)
	}

	tmpl := make([]Bucket, len(buckets))
	copy(tmpl, buckets)

	state := make([]Accumulation, len(buckets))
	for i := range state {
		state[i].Sum = decimal.Zero
	}

	return &Accumulator{
		buckets: tmpl,
		state:   state,
		reducer: reducer,
	}, nil
}

// Fold adds one page of records. Either the whole page is folded or, when the
// bucket sequence is empty, none of it is.
func (a *Accumulator) Fold(records []v1.Record) error {
	if len(records) == 0 {
		return nil
	}
	if len(a.buckets) == 0 {
		return fmt.Errorf("%w: %d records offered", ErrEmptyGranularity, len(records))
	}
	for i := range records {
		a.add(&records[i])
	}
	return nil
}

func (a *Accumulator) add(r *v1.Record) {
	idx := a.locate(r.StartTime)
	if idx < 0 {
		a.skipped++
		return
	}
	a.state[idx] = a.reducer.Fold(a.state[idx], r.Value)
}

// locate binary-searches the bucket whose [StartTime, EndTime) contains t.
func (a *Accumulator) locate(t time.Time) int {
	i := sort.Search(len(a.buckets), func(i int) bool {
		return a.buckets[i].EndTime.After(t)
	})
	if i < len(a.buckets) && a.buckets[i].Window().Contains(t) {
		return i
	}
	return -1
}

// Skipped returns the number of out-of-window records seen so far.
func (a *Accumulator) Skipped() int64 {
	return a.skipped
}

// Result finalizes every bucket. Empty buckets report a zero value and zero samples.
func (a *Accumulator) Result(unit string) Result {
	out := make([]Bucket, len(a.buckets))
	for i, b := range a.buckets {
		b.Value = a.reducer.Result(a.state[i])
		b.SampleCount = a.state[i].Count
		b.Unit = unit
		out[i] = b
	}
	return Result{Buckets: out, Skipped: a.skipped}
}

// Aggregate consumes records lazily and reduces them into buckets per kind.
// Every returned bucket carries unit.
func Aggregate(records iter.Seq[v1.Record], buckets []Bucket, kind metric.Kind, unit string) (Result, error) {
	acc, err := NewAccumulator(buckets, kind)
	if err != nil {
		return Result{}, err
	}

	for rec := range records {
		if len(acc.buckets) == 0 {
			return Result{}, fmt.Errorf("%w: record %s offered", ErrEmptyGranularity, rec.ID)
		}
		acc.add(&rec)
	}

	return acc.Result(unit), nil
}

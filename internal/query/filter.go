// Package query builds the read-side queries over the observation store:
// the date/parameter filter and the nearest-observation ranking.
package query

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/chadmayfield/waterqd/internal/store"
)

// ErrInvalidFilter is returned when filter input cannot be coerced.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter selects observations by date range and optional parameter thresholds.
// Dates are compared as raw strings, inclusive on both ends, so every stored
// date_time must share one ISO-8601 layout for the range to be meaningful.
type Filter struct {
	Start       string
	End         string
	MinPH       *float64
	MaxPH       *float64
	Contaminant string
}

// NewFilter starts a filter over the inclusive range [start, end].
func NewFilter(start, end string) *Filter {
	return &Filter{Start: start, End: end}
}

// WithMinPH requires pH >= v.
func (f *Filter) WithMinPH(v float64) *Filter {
	f.MinPH = &v
	return f
}

// WithMaxPH requires pH <= v.
func (f *Filter) WithMaxPH(v float64) *Filter {
	f.MaxPH = &v
	return f
}

// WithContaminant requires the stored contaminant text to contain s.
// Matching is by substring, so "Lead" also matches "LeadOxide".
func (f *Filter) WithContaminant(s string) *Filter {
	f.Contaminant = s
	return f
}

// Predicate composes the clauses in fixed order: date range, min pH,
// max pH, contaminant. Absent constraints add nothing.
func (f *Filter) Predicate() store.Predicate {
	p := store.Predicate{}.And(store.Clause{
		Kind:   store.Between,
		Column: store.ColDateTime,
		Args:   []any{f.Start, f.End},
	})
	if f.MinPH != nil {
		p = p.And(store.Clause{Kind: store.AtLeast, Column: store.ColPH, Args: []any{*f.MinPH}})
	}
	if f.MaxPH != nil {
		p = p.And(store.Clause{Kind: store.AtMost, Column: store.ColPH, Args: []any{*f.MaxPH}})
	}
	if f.Contaminant != "" {
		p = p.And(store.Clause{Kind: store.Contains, Column: store.ColContaminants, Args: []any{f.Contaminant}})
	}
	return p
}

// Run executes the filter and returns matching observations in id order.
func (f *Filter) Run(ctx context.Context, s store.Store) ([]store.Observation, error) {
	rows, err := s.Scan(ctx, f.Predicate())
	if err != nil {
		return nil, err
	}
	result := make([]store.Observation, len(rows))
	for i, r := range rows {
		result[i] = r.Observation()
	}
	return result, nil
}

// ParseFilter reads start_date, end_date, min_pH, max_pH and contaminants
// from URL query values.
func ParseFilter(q url.Values) (*Filter, error) {
	start, end := q.Get("start_date"), q.Get("end_date")
	if start == "" {
		return nil, fmt.Errorf("%w: missing 'start_date' parameter", ErrInvalidFilter)
	}
	if end == "" {
		return nil, fmt.Errorf("%w: missing 'end_date' parameter", ErrInvalidFilter)
	}

	f := NewFilter(start, end)
	if v := q.Get("min_pH"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid 'min_pH' parameter %q", ErrInvalidFilter, v)
		}
		f.WithMinPH(n)
	}
	if v := q.Get("max_pH"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid 'max_pH' parameter %q", ErrInvalidFilter, v)
		}
		f.WithMaxPH(n)
	}
	f.WithContaminant(q.Get("contaminants"))
	return f, nil
}

package query

import (
	"context"
	"slices"

	"github.com/chadmayfield/waterqd/internal/geo"
	"github.com/chadmayfield/waterqd/internal/store"
)

// DefaultNearestLimit is used when a caller does not choose a limit.
const DefaultNearestLimit = 10

// Nearby is one ranked result of a nearest-observation query.
type Nearby struct {
	ID         int64          `json:"id"`
	DistanceKm float64        `json:"distance_km"`
	Location   store.Location `json:"location"`
}

// Finder ranks stored observations by distance to a point.
type Finder struct {
	store store.Store
}

// NewFinder creates a Finder over s.
func NewFinder(s store.Store) *Finder {
	return &Finder{store: s}
}

// Find scans every observation and returns at most limit of them, nearest
// first. Equal distances keep scan (id) order. limit <= 0 yields no results.
func (f *Finder) Find(ctx context.Context, from geo.Point, limit int) ([]Nearby, error) {
	if limit <= 0 {
		return []Nearby{}, nil
	}

	rows, err := f.store.Scan(ctx, store.Predicate{})
	if err != nil {
		return nil, err
	}

	ranked := make([]Nearby, len(rows))
	for i, r := range rows {
		ranked[i] = Nearby{
			ID:         r.ID,
			DistanceKm: geo.Distance(from, geo.Point{Latitude: r.Latitude, Longitude: r.Longitude}),
			Location:   store.Location{Latitude: r.Latitude, Longitude: r.Longitude},
		}
	}

	slices.SortStableFunc(ranked, func(a, b Nearby) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return 0
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

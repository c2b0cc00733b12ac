package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no observation has the requested id.
	ErrNotFound = errors.New("observation not found")

	// ErrInvalidObservation is returned for observations the store cannot encode.
	ErrInvalidObservation = errors.New("invalid observation")
)

// StorageError wraps a failure reported by the database engine.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store defines the interface for observation storage.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	// Create inserts an observation and returns a copy with its assigned ID.
	Create(ctx context.Context, obs *Observation) (*Observation, error)

	// CreateMany inserts observations in batched transactions and returns their IDs in input order.
	CreateMany(ctx context.Context, obs []Observation) ([]int64, error)

	// List returns every stored observation ordered by ID.
	List(ctx context.Context) ([]Observation, error)

	// Get returns a single observation or ErrNotFound.
	Get(ctx context.Context, id int64) (*Observation, error)

	// Update overwrites every field except the ID. It never inserts.
	Update(ctx context.Context, id int64, obs *Observation) (*Observation, error)

	// Delete removes an observation permanently. Missing IDs yield ErrNotFound.
	Delete(ctx context.Context, id int64) error

	// Scan returns raw rows matching the predicate, ordered by ID.
	Scan(ctx context.Context, p Predicate) ([]Row, error)

	// Count returns the total number of stored observations.
	Count(ctx context.Context) (int, error)

	// Close closes the database connection.
	Close() error
}

// Location is a latitude/longitude pair in degrees. It is stored unvalidated.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Parameters holds the measured water-quality values.
type Parameters struct {
	PH           float64  `json:"pH"`
	Conductivity float64  `json:"conductivity"`
	DO           float64  `json:"DO"`
	Contaminants []string `json:"contaminants"`
}

// Observation is a single water-quality field record.
// DateTime is kept verbatim; range filters compare it as a string.
type Observation struct {
	ID          int64      `json:"id"`
	Location    Location   `json:"location"`
	DateTime    string     `json:"date_time"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Row mirrors the persisted column layout of water_quality_observations.
type Row struct {
	ID           int64
	Latitude     float64
	Longitude    float64
	DateTime     string
	Description  string
	PH           float64
	Conductivity float64
	DO           float64
	Contaminants string
}

// Observation reassembles the structured shape from a raw row.
func (r Row) Observation() Observation {
	return Observation{
		ID:          r.ID,
		Location:    Location{Latitude: r.Latitude, Longitude: r.Longitude},
		DateTime:    r.DateTime,
		Description: r.Description,
		Parameters: Parameters{
			PH:           r.PH,
			Conductivity: r.Conductivity,
			DO:           r.DO,
			Contaminants: SplitContaminants(r.Contaminants),
		},
	}
}

// ContaminantSep joins contaminant names in the contaminants column.
// Names containing it cannot be stored.
const ContaminantSep = ","

// JoinContaminants encodes a contaminant list for storage.
func JoinContaminants(names []string) (string, error) {
	for _, n := range names {
		if strings.Contains(n, ContaminantSep) {
			return "", fmt.Errorf("%w: contaminant %q contains %q", ErrInvalidObservation, n, ContaminantSep)
		}
	}
	return strings.Join(names, ContaminantSep), nil
}

// SplitContaminants decodes the contaminants column. An empty column is an empty list.
func SplitContaminants(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ContaminantSep)
}

// toArgs returns the column values of obs in insert order (excluding id).
func toArgs(obs *Observation) ([]any, error) {
	if obs == nil {
		return nil, fmt.Errorf("%w: nil observation", ErrInvalidObservation)
	}
	contaminants, err := JoinContaminants(obs.Parameters.Contaminants)
	if err != nil {
		return nil, err
	}
	return []any{
		obs.Location.Latitude, obs.Location.Longitude,
		obs.DateTime, obs.Description,
		obs.Parameters.PH, obs.Parameters.Conductivity, obs.Parameters.DO,
		contaminants,
	}, nil
}

func withID(obs *Observation, id int64) *Observation {
	out := *obs
	out.ID = id
	out.Parameters.Contaminants = append([]string{}, obs.Parameters.Contaminants...)
	return &out
}

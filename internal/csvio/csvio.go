// Package csvio moves observations between the store and CSV files.
package csvio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chadmayfield/waterqd/internal/store"
	"github.com/gocarina/gocsv"
	"github.com/schollz/progressbar/v3"
)

// ErrInvalidRecord is returned for CSV rows that cannot become observations.
var ErrInvalidRecord = errors.New("invalid csv record")

// contaminantSep separates contaminant names inside the CSV column.
const contaminantSep = ";"

// chunkSize is how many records are handed to CreateMany per progress tick.
const chunkSize = 500

// record is one CSV line. The id column is written on export and ignored on import.
type record struct {
	ID           int64   `csv:"id"`
	Latitude     float64 `csv:"latitude"`
	Longitude    float64 `csv:"longitude"`
	DateTime     string  `csv:"date_time"`
	Description  string  `csv:"description"`
	PH           float64 `csv:"ph"`
	Conductivity float64 `csv:"conductivity"`
	DO           float64 `csv:"do"`
	Contaminants string  `csv:"contaminants"`
}

func fromObservation(o store.Observation) *record {
	return &record{
		ID:           o.ID,
		Latitude:     o.Location.Latitude,
		Longitude:    o.Location.Longitude,
		DateTime:     o.DateTime,
		Description:  o.Description,
		PH:           o.Parameters.PH,
		Conductivity: o.Parameters.Conductivity,
		DO:           o.Parameters.DO,
		Contaminants: strings.Join(o.Parameters.Contaminants, contaminantSep),
	}
}

func (r *record) observation() store.Observation {
	contaminants := []string{}
	for _, c := range strings.Split(r.Contaminants, contaminantSep) {
		if c = strings.TrimSpace(c); c != "" {
			contaminants = append(contaminants, c)
		}
	}
	return store.Observation{
		Location:    store.Location{Latitude: r.Latitude, Longitude: r.Longitude},
		DateTime:    r.DateTime,
		Description: r.Description,
		Parameters: store.Parameters{
			PH:           r.PH,
			Conductivity: r.Conductivity,
			DO:           r.DO,
			Contaminants: contaminants,
		},
	}
}

// NewBar returns a progress bar writing to w.
func NewBar(w io.Writer, size int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Import reads CSV observations from r and inserts them in chunks, reporting
// progress to progress. Every record is validated before anything is written.
// On a storage failure the chunks already committed stay in place and the
// returned count says how many.
func Import(ctx context.Context, s store.Store, r io.Reader, progress io.Writer) (int, error) {
	var records []*record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	obs := make([]store.Observation, len(records))
	for i, rec := range records {
		if rec.DateTime == "" {
			// Line 1 is the header.
			return 0, fmt.Errorf("%w: line %d: missing date_time", ErrInvalidRecord, i+2)
		}
		obs[i] = rec.observation()
		if _, err := store.JoinContaminants(obs[i].Parameters.Contaminants); err != nil {
			return 0, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, i+2, err)
		}
	}

	bar := NewBar(progress, len(obs), "importing observations")
	imported := 0
	for start := 0; start < len(obs); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		end := min(start+chunkSize, len(obs))

		ids, err := s.CreateMany(ctx, obs[start:end])
		imported += len(ids)
		if err != nil {
			return imported, fmt.Errorf("importing records %d-%d: %w", start+1, end, err)
		}
		_ = bar.Add(len(ids))
		slog.Debug("imported chunk", "from", start+1, "to", end, "total", len(obs))
	}
	_ = bar.Finish()
	return imported, nil
}

// Export writes every observation matching p to w as CSV, in id order.
func Export(ctx context.Context, s store.Store, p store.Predicate, w io.Writer) (int, error) {
	rows, err := s.Scan(ctx, p)
	if err != nil {
		return 0, err
	}

	records := make([]*record, len(rows))
	for i, row := range rows {
		records[i] = fromObservation(row.Observation())
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return 0, fmt.Errorf("writing csv: %w", err)
	}
	return len(records), nil
}

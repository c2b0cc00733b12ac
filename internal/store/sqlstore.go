package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// sqlStore holds the query logic shared by the SQLite and PostgreSQL backends.
// The two engines differ only in placeholder syntax and LIKE case handling.
type sqlStore struct {
	db      *sql.DB
	dialect string
}

// DB returns the underlying database connection for migration commands.
func (s *sqlStore) DB() *sql.DB {
	return s.db
}

func (s *sqlStore) rebind(q string) string {
	if s.dialect == "postgres" {
		return replacePlaceholders(q)
	}
	return q
}

const insertObservation = `
	INSERT INTO water_quality_observations (
		latitude, longitude, date_time, description,
		ph, conductivity, "do", contaminants
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

func (s *sqlStore) Create(ctx context.Context, obs *Observation) (*Observation, error) {
	args, err := toArgs(obs)
	if err != nil {
		return nil, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, s.rebind(insertObservation), args...).Scan(&id); err != nil {
		return nil, storageErr("creating observation", err)
	}
	return withID(obs, id), nil
}

func (s *sqlStore) CreateMany(ctx context.Context, obs []Observation) ([]int64, error) {
	const batchSize = 100
	ids := make([]int64, 0, len(obs))
	for i := 0; i < len(obs); i += batchSize {
		end := i + batchSize
		if end > len(obs) {
			end = len(obs)
		}
		batch, err := s.createBatch(ctx, obs[i:end])
		if err != nil {
			return ids, err
		}
		ids = append(ids, batch...)
	}
	return ids, nil
}

func (s *sqlStore) createBatch(ctx context.Context, obs []Observation) ([]int64, error) {
	// Encode everything up front so a bad record never leaves a half-written batch.
	rows := make([][]any, len(obs))
	for i := range obs {
		args, err := toArgs(&obs[i])
		if err != nil {
			return nil, err
		}
		rows[i] = args
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertObservation))
	if err != nil {
		return nil, storageErr("preparing statement", err)
	}
	defer stmt.Close() //nolint:errcheck

	ids := make([]int64, 0, len(rows))
	for _, args := range rows {
		var id int64
		if err := stmt.QueryRowContext(ctx, args...).Scan(&id); err != nil {
			return nil, storageErr("inserting observation", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing transaction", err)
	}
	return ids, nil
}

func (s *sqlStore) List(ctx context.Context) ([]Observation, error) {
	rows, err := s.Scan(ctx, Predicate{})
	if err != nil {
		return nil, err
	}
	result := make([]Observation, len(rows))
	for i, r := range rows {
		result[i] = r.Observation()
	}
	return result, nil
}

func (s *sqlStore) Get(ctx context.Context, id int64) (*Observation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+columns+`
		FROM water_quality_observations
		WHERE id = ?`), id)

	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("getting observation", err)
	}
	obs := r.Observation()
	return &obs, nil
}

func (s *sqlStore) Update(ctx context.Context, id int64, obs *Observation) (*Observation, error) {
	args, err := toArgs(obs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM water_quality_observations WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("checking observation", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE water_quality_observations SET
			latitude = ?, longitude = ?, date_time = ?, description = ?,
			ph = ?, conductivity = ?, "do" = ?, contaminants = ?
		WHERE id = ?`), append(args, id)...)
	if err != nil {
		return nil, storageErr("updating observation", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing transaction", err)
	}
	return withID(obs, id), nil
}

func (s *sqlStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM water_quality_observations WHERE id = ?`), id)
	if err != nil {
		return storageErr("deleting observation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("deleting observation", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) Scan(ctx context.Context, p Predicate) ([]Row, error) {
	query, args, err := buildScanQuery(p, s.dialect)
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying observations", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, storageErr("scanning observation", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating observations", err)
	}
	return result, nil
}

func (s *sqlStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM water_quality_observations`).Scan(&count)
	if err != nil {
		return 0, storageErr("counting observations", err)
	}
	return count, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row scanner) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.Latitude, &r.Longitude,
		&r.DateTime, &r.Description,
		&r.PH, &r.Conductivity, &r.DO,
		&r.Contaminants,
	)
	return r, err
}

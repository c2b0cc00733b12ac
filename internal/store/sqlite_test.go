package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "test.db")
	s, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeObs(lat, lon float64, dateTime string, ph float64, contaminants ...string) Observation {
	return Observation{
		Location:    Location{Latitude: lat, Longitude: lon},
		DateTime:    dateTime,
		Description: "sample at " + dateTime,
		Parameters: Parameters{
			PH:           ph,
			Conductivity: 250,
			DO:           67,
			Contaminants: contaminants,
		},
	}
}

func mustCreate(t *testing.T, s Store, obs Observation) *Observation {
	t.Helper()
	got, err := s.Create(context.Background(), &obs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return got
}

func TestSQLiteStore_CreateAndList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	obs := makeObs(40.712776, -74.005974, "2024-03-19T15:00:00Z", 7.4, "Lead", "Arsenic")
	created, err := s.Create(ctx, &obs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if obs.ID != 0 {
		t.Errorf("input observation was mutated: id = %d", obs.ID)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d observations, want 1", len(all))
	}

	want := obs
	want.ID = created.ID
	if !reflect.DeepEqual(all[0], want) {
		t.Errorf("List()[0] = %+v, want %+v", all[0], want)
	}
}

func TestSQLiteStore_IDsIncrease(t *testing.T) {
	s := newTestSQLiteStore(t)

	a := mustCreate(t, s, makeObs(0, 0, "2024-03-18", 7))
	b := mustCreate(t, s, makeObs(0, 1, "2024-03-19", 7))
	if b.ID <= a.ID {
		t.Errorf("ids not increasing: %d then %d", a.ID, b.ID)
	}
}

func TestSQLiteStore_ContaminantsRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"ordered", []string{"Lead", "Arsenic", "Copper"}, []string{"Lead", "Arsenic", "Copper"}},
		{"single", []string{"Mercury"}, []string{"Mercury"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := mustCreate(t, s, makeObs(1, 1, "2024-03-19", 7, tt.input...))
			got, err := s.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !reflect.DeepEqual(got.Parameters.Contaminants, tt.want) {
				t.Errorf("contaminants = %q, want %q", got.Parameters.Contaminants, tt.want)
			}
		})
	}
}

func TestSQLiteStore_RejectsDelimiterInContaminant(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	obs := makeObs(1, 1, "2024-03-19", 7, "Lead,Oxide")
	if _, err := s.Create(ctx, &obs); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("Create error = %v, want ErrInvalidObservation", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := mustCreate(t, s, makeObs(1, 1, "2024-03-19T09:00:00Z", 7.0, "Lead"))
	second := mustCreate(t, s, makeObs(2, 2, "2024-03-19T10:00:00Z", 6.5, "Zinc"))

	repl := makeObs(3, 3, "2024-03-20T09:00:00Z", 7.5, "Lead", "Arsenic", "Copper")
	repl.Description = "updated"
	repl.ID = 999 // ignored; the path id wins

	updated, err := s.Update(ctx, first.ID, &repl)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != first.ID {
		t.Errorf("updated id = %d, want %d", updated.ID, first.ID)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "updated" || got.Parameters.PH != 7.5 || got.Location.Latitude != 3 {
		t.Errorf("row not updated: %+v", got)
	}

	// The other row is untouched.
	other, err := s.Get(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(other, second) {
		t.Errorf("unrelated row changed: got %+v, want %+v", other, second)
	}
}

func TestSQLiteStore_UpdateMissing(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	mustCreate(t, s, makeObs(1, 1, "2024-03-19", 7))

	obs := makeObs(2, 2, "2024-03-20", 8)
	if _, err := s.Update(ctx, 4242, &obs); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update error = %v, want ErrNotFound", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d rows after failed update, want 1", len(all))
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, makeObs(1, 1, "2024-03-19", 7))
	b := mustCreate(t, s, makeObs(2, 2, "2024-03-19", 7))

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, b.ID); err != nil {
		t.Errorf("other row missing: %v", err)
	}

	// Deleting again must not look like success.
	if err := s.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestSQLiteStore(t)
	if _, err := s.Get(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_CreateMany(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	var obs []Observation
	for i := 0; i < 250; i++ {
		obs = append(obs, makeObs(float64(i%90), 0, "2024-03-19", 7, "Lead"))
	}

	ids, err := s.CreateMany(ctx, obs)
	if err != nil {
		t.Fatalf("CreateMany: %v", err)
	}
	if len(ids) != 250 {
		t.Fatalf("got %d ids, want 250", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not in input order at %d: %d <= %d", i, ids[i], ids[i-1])
		}
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 250 {
		t.Errorf("count = %d, want 250", n)
	}
}

func TestSQLiteStore_CreateManyRejectsWholeBatch(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	obs := []Observation{
		makeObs(1, 1, "2024-03-19", 7, "Lead"),
		makeObs(2, 2, "2024-03-19", 7, "bad,name"),
	}
	if _, err := s.CreateMany(ctx, obs); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("CreateMany error = %v, want ErrInvalidObservation", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestSQLiteStore_Scan(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	mustCreate(t, s, makeObs(1, 1, "2024-03-18", 6.0, "Lead", "Arsenic"))
	mustCreate(t, s, makeObs(1, 1, "2024-03-19", 9.0, "LeadOxide"))
	mustCreate(t, s, makeObs(1, 1, "2024-03-19", 7.0, "Copper"))
	mustCreate(t, s, makeObs(1, 1, "2024-03-21", 7.0, "50%_solution"))

	tests := []struct {
		name string
		pred Predicate
		want int
	}{
		{"all", Predicate{}, 4},
		{"date range", Predicate{}.And(Clause{Kind: Between, Column: ColDateTime, Args: []any{"2024-03-19", "2024-03-20"}}), 2},
		{"min ph", Predicate{}.And(Clause{Kind: AtLeast, Column: ColPH, Args: []any{7.0}}), 3},
		{"max ph", Predicate{}.And(Clause{Kind: AtMost, Column: ColPH, Args: []any{7.0}}), 3},
		{"contains substring", Predicate{}.And(Clause{Kind: Contains, Column: ColContaminants, Args: []any{"Lead"}}), 2},
		{"contains is case-insensitive", Predicate{}.And(Clause{Kind: Contains, Column: ColContaminants, Args: []any{"lead"}}), 2},
		{"percent is literal", Predicate{}.And(Clause{Kind: Contains, Column: ColContaminants, Args: []any{"%"}}), 1},
		{"underscore is literal", Predicate{}.And(Clause{Kind: Contains, Column: ColContaminants, Args: []any{"_"}}), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Scan(ctx, tt.pred)
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}
}

func TestSQLiteStore_ScanReturnsRawColumns(t *testing.T) {
	s := newTestSQLiteStore(t)
	created := mustCreate(t, s, makeObs(10.5, -20.25, "2024-03-19T15:00:00Z", 7.4, "Lead", "Arsenic"))

	rows, err := s.Scan(context.Background(), Predicate{})
	if err != nil {
		t.Fatal(err)
	}
	want := Row{
		ID:           created.ID,
		Latitude:     10.5,
		Longitude:    -20.25,
		DateTime:     "2024-03-19T15:00:00Z",
		Description:  "sample at 2024-03-19T15:00:00Z",
		PH:           7.4,
		Conductivity: 250,
		DO:           67,
		Contaminants: "Lead,Arsenic",
	}
	if len(rows) != 1 || rows[0] != want {
		t.Errorf("rows = %+v, want [%+v]", rows, want)
	}
}

func TestSQLiteStore_StorageError(t *testing.T) {
	s := newTestSQLiteStore(t)
	_ = s.Close()

	_, err := s.List(context.Background())
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("List on closed store error = %v, want *StorageError", err)
	}
	if se.Op == "" {
		t.Error("expected StorageError.Op to be set")
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatal(err)
	}
	mustCreate(t, s, makeObs(1, 1, "2024-03-19", 7))
	_ = s.Close()

	s2, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s2.Close() //nolint:errcheck

	n, err := s2.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count after reopen = %d, want 1", n)
	}
}

func TestSQLiteStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "perms.db")
	s, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	info, err := os.Stat(dsn)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

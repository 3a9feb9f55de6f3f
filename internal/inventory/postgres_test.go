package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return scanInto(r.data[r.idx-1], dest) }

// scanInto copies row values into scan destinations.
func scanInto(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pingErr      error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) Ping(context.Context) error { return m.pingErr }

func itemRow(id, owner, name string, qty float64, expiry string) []any {
	return []any{id, owner, name, qty, "pieces", "Other", expiry, 0.0, SourceManual, fixedNow}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var executed string
	db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		executed = sql
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if executed != Schema {
		t.Error("Migrate did not execute Schema")
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	if err := NewPostgresStore(db).Migrate(context.Background()); err == nil {
		t.Error("expected migrate error")
	}
}

func TestPostgresStore_Add(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	db := &mockDB{execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if !strings.Contains(sql, "INSERT INTO inventory_items") {
			t.Errorf("unexpected SQL: %s", sql)
		}
		gotArgs = args
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}}
	s := NewPostgresStore(db)
	s.now = func() time.Time { return fixedNow }

	item := Item{OwnerID: "alice", Name: "atta", Quantity: 5, Unit: "kg", ExpiryDate: "2027-01-01"}
	if err := s.Add(context.Background(), &item); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(gotArgs) != 10 {
		t.Fatalf("args = %d, want 10", len(gotArgs))
	}
	if gotArgs[0] != item.ID || gotArgs[1] != "alice" || gotArgs[2] != "atta" || gotArgs[3] != 5.0 {
		t.Errorf("args = %v", gotArgs)
	}
	if created, _ := gotArgs[9].(time.Time); !created.Equal(fixedNow) {
		t.Errorf("created_at = %v, want %v", gotArgs[9], fixedNow)
	}
	if gotArgs[6] != "2027-01-01" || gotArgs[8] != SourceManual {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestPostgresStore_AddDuplicate(t *testing.T) {
	t.Parallel()

	db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
	}}
	item := Item{ID: "fixed", OwnerID: "alice", Name: "atta", Quantity: 1}
	err := NewPostgresStore(db).Add(context.Background(), &item)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("err = %v, want duplicate error", err)
	}
}

func TestPostgresStore_AddInvalidSkipsDB(t *testing.T) {
	t.Parallel()

	called := false
	db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		called = true
		return pgconn.CommandTag{}, nil
	}}
	item := Item{OwnerID: "alice"}
	if err := NewPostgresStore(db).Add(context.Background(), &item); err == nil {
		t.Error("expected validation error")
	}
	if called {
		t.Error("invalid item reached the database")
	}
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
		if args[0] != "alice" {
			return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
		}
		return &mockRow{scanFunc: func(dest ...any) error {
			return scanInto(itemRow(args[1].(string), "alice", "ghee", 1, "2027-03-01"), dest)
		}}
	}}
	s := NewPostgresStore(db)

	it, err := s.Get(context.Background(), "alice", "id-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if it.ID != "id-1" || it.Name != "ghee" || it.ExpiryDate != "2027-03-01" {
		t.Errorf("item = %+v", it)
	}

	if _, err := s.Get(context.Background(), "bob", "id-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()

	rows := &mockRows{data: [][]any{
		itemRow("1", "alice", "dahi", 1, "2026-10-15"),
		itemRow("2", "alice", "milk", 2, "2026-10-17"),
	}}
	var gotSQL string
	var gotArgs []any
	db := &mockDB{queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		gotSQL, gotArgs = sql, args
		return rows, nil
	}}

	items, err := NewPostgresStore(db).List(context.Background(), "alice", ListOptions{Category: "Dairy", ExpiringBefore: "2026-10-18"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if names(items) != "dahi,milk" {
		t.Errorf("items = %q", names(items))
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
	if len(gotArgs) != 3 || gotArgs[1] != "Dairy" || gotArgs[2] != "2026-10-18" {
		t.Errorf("args = %v", gotArgs)
	}
	for _, want := range []string{"lower(category) = lower($2)", "expiry_date < $3", "ORDER BY"} {
		if !strings.Contains(gotSQL, want) {
			t.Errorf("SQL missing %q: %s", want, gotSQL)
		}
	}
}

func TestPostgresStore_ListRowsError(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
		return &mockRows{err: errors.New("connection lost")}, nil
	}}
	if _, err := NewPostgresStore(db).List(context.Background(), "alice", ListOptions{}); err == nil {
		t.Error("expected rows error")
	}
}

func TestListQuery(t *testing.T) {
	t.Parallel()

	q, args := listQuery("alice", ListOptions{})
	if len(args) != 1 || strings.Contains(q, "lower(category)") {
		t.Errorf("unfiltered query = %s %v", q, args)
	}
	q, args = listQuery("alice", ListOptions{ExpiringBefore: "2026-11-01"})
	if len(args) != 2 || !strings.Contains(q, "expiry_date < $2") {
		t.Errorf("expiry query = %s %v", q, args)
	}
}

func TestPostgresStore_Remove(t *testing.T) {
	t.Parallel()

	db := &mockDB{execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
		if args[1] == "present" {
			return pgconn.NewCommandTag("DELETE 1"), nil
		}
		return pgconn.NewCommandTag("DELETE 0"), nil
	}}
	s := NewPostgresStore(db)

	if err := s.Remove(context.Background(), "alice", "present"); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if err := s.Remove(context.Background(), "alice", "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	if err := NewPostgresStore(&mockDB{}).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := NewPostgresStore(&mockDB{pingErr: errors.New("down")}).Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the inventory_items table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
// expiry_date holds YYYY-MM-DD text so that an unknown date is the empty
// string and ordering is lexical.
const Schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    name        TEXT NOT NULL,
    quantity    DOUBLE PRECISION NOT NULL CHECK (quantity > 0),
    unit        TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    expiry_date TEXT NOT NULL DEFAULT '' CHECK (expiry_date = '' OR expiry_date ~ '^\d{4}-\d{2}-\d{2}$'),
    price       DOUBLE PRECISION NOT NULL DEFAULT 0,
    source      TEXT NOT NULL DEFAULT 'manual',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_owner ON inventory_items(owner_id);
CREATE INDEX IF NOT EXISTS idx_inventory_items_owner_expiry ON inventory_items(owner_id, expiry_date);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. The caller is responsible
// for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres connects a pool to dsn, pings it and applies [Schema]. The
// returned close function releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("inventory: ping postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("inventory: migrate: %w", err)
	}
	return nil
}

const selectColumns = `id, owner_id, name, quantity, unit, category, expiry_date, price, source, created_at`

func (s *PostgresStore) Add(ctx context.Context, item *Item) error {
	if err := prepare(item, s.now()); err != nil {
		return err
	}
	const query = `
		INSERT INTO inventory_items (` + selectColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.db.Exec(ctx, query,
		item.ID, item.OwnerID, item.Name, item.Quantity, item.Unit,
		item.Category, item.ExpiryDate, item.Price, item.Source, item.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("inventory: item with id %q already exists", item.ID)
		}
		return fmt.Errorf("inventory: add: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, owner, id string) (Item, error) {
	const query = `SELECT ` + selectColumns + ` FROM inventory_items WHERE owner_id = $1 AND id = $2`
	it, err := scanItem(s.db.QueryRow(ctx, query, owner, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("inventory: get %q: %w", id, err)
	}
	return it, nil
}

func (s *PostgresStore) List(ctx context.Context, owner string, opts ListOptions) ([]Item, error) {
	query, args := listQuery(owner, opts)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("inventory: list scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Remove(ctx context.Context, owner, id string) error {
	const query = `DELETE FROM inventory_items WHERE owner_id = $1 AND id = $2`
	tag, err := s.db.Exec(ctx, query, owner, id)
	if err != nil {
		return fmt.Errorf("inventory: remove %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("inventory: ping postgres: %w", err)
	}
	return nil
}

// listQuery builds the filtered SELECT for [PostgresStore.List]. Ordering
// matches sortItems.
func listQuery(owner string, opts ListOptions) (string, []any) {
	query := `SELECT ` + selectColumns + ` FROM inventory_items WHERE owner_id = $1`
	args := []any{owner}
	if opts.Category != "" {
		args = append(args, opts.Category)
		query += fmt.Sprintf(` AND lower(category) = lower($%d)`, len(args))
	}
	if opts.ExpiringBefore != "" {
		args = append(args, opts.ExpiringBefore)
		query += fmt.Sprintf(` AND expiry_date <> '' AND expiry_date < $%d`, len(args))
	}
	query += ` ORDER BY expiry_date = '', expiry_date, name, id`
	return query, args
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.OwnerID, &it.Name, &it.Quantity, &it.Unit,
		&it.Category, &it.ExpiryDate, &it.Price, &it.Source, &it.CreatedAt,
	)
	return it, err
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

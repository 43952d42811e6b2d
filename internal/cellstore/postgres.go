package cellstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/dyluth/songgrid/pkg/grid"
)

const (
	defaultTableName        = "grid_tiles"
	defaultOperationTimeout = 5 * time.Second
)

// Options tunes a store adapter.
type Options struct {
	Table            string        // Table name, default grid_tiles
	OperationTimeout time.Duration // Bound on each statement, default 5s
}

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres stores cells in a single PostgreSQL table keyed by (row_num, col_num).
type Postgres struct {
	db        *sql.DB
	tableName string
	timeout   time.Duration
}

// OpenPostgres opens a connection pool for dsn. The connection is established
// lazily; call Ping to verify it.
func OpenPostgres(dsn string, opts Options) (*Postgres, error) {
	return openPostgres(sql.Open, dsn, opts)
}

func openPostgres(open sqlOpenFunc, dsn string, opts Options) (*Postgres, error) {
	db, err := open("postgres", dsn)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to open postgres: %w", err))
	}
	return NewPostgres(db, opts), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB, opts Options) *Postgres {
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		table = defaultTableName
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &Postgres{db: db, tableName: table, timeout: timeout}
}

// Migrate creates the table and seeds every coordinate of extent.
// Existing rows are left untouched.
func (p *Postgres) Migrate(ctx context.Context, extent grid.Extent) error {
	if err := extent.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	table := quoteIdentifier(p.tableName)
	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			row_num INTEGER NOT NULL,
			col_num INTEGER NOT NULL,
			link TEXT,
			username TEXT,
			last_updated TIMESTAMPTZ,
			PRIMARY KEY (row_num, col_num)
		)`, table)
	if _, err := p.db.ExecContext(ctx, create); err != nil {
		return wrapUnavailable("create table", err)
	}

	seed := fmt.Sprintf(`
		INSERT INTO %s (row_num, col_num)
		SELECT r, c FROM generate_series(1, $1) AS r CROSS JOIN generate_series(1, $2) AS c
		ON CONFLICT (row_num, col_num) DO NOTHING`, table)
	if _, err := p.db.ExecContext(ctx, seed, extent.Rows, extent.Cols); err != nil {
		return wrapUnavailable("seed grid", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, c grid.Coord) (grid.Cell, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT row_num, col_num, link, username, last_updated
		FROM %s WHERE row_num = $1 AND col_num = $2`, quoteIdentifier(p.tableName))
	cell, err := scanCell(p.db.QueryRowContext(ctx, query, c.Row, c.Col))
	if errors.Is(err, sql.ErrNoRows) {
		return grid.Cell{}, false, nil
	}
	if err != nil {
		return grid.Cell{}, false, wrapUnavailable("read tile", err)
	}
	return cell, true, nil
}

func (p *Postgres) All(ctx context.Context) ([]grid.Cell, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT row_num, col_num, link, username, last_updated
		FROM %s ORDER BY row_num, col_num`, quoteIdentifier(p.tableName))
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapUnavailable("read all tiles", err)
	}
	defer rows.Close()

	var cells []grid.Cell
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, wrapUnavailable("scan tile", err)
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("read all tiles", err)
	}
	return cells, nil
}

func (p *Postgres) Upsert(ctx context.Context, cell grid.Cell) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (row_num, col_num, link, username, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (row_num, col_num)
		DO UPDATE SET link = EXCLUDED.link, username = EXCLUDED.username, last_updated = EXCLUDED.last_updated`,
		quoteIdentifier(p.tableName))
	res, err := p.db.ExecContext(ctx, query, cell.Row, cell.Col, nullString(cell.Link), nullString(cell.Username), nullTime(cell.LastUpdated))
	if err != nil {
		return 0, wrapUnavailable("update tile", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapUnavailable("update tile", err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return wrapUnavailable("ping", p.db.PingContext(ctx))
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCell(row rowScanner) (grid.Cell, error) {
	var (
		cell     grid.Cell
		link     sql.NullString
		username sql.NullString
		updated  sql.NullTime
	)
	if err := row.Scan(&cell.Row, &cell.Col, &link, &username, &updated); err != nil {
		return grid.Cell{}, err
	}
	cell.Link = link.String
	cell.Username = username.String
	if updated.Valid {
		ts := updated.Time.UTC()
		cell.LastUpdated = &ts
	}
	return cell, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

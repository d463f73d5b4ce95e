package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"valuepulse/internal/table"
)

// undefinedTable is the Postgres error code for a missing relation
const undefinedTable = "42P01"

// pgConn is the subset of a pgx pool the store needs
type pgConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore maps a bucket to a schema and a blob to a table. A ".csv"
// suffix on blob names is dropped so names line up with file backends.
type PostgresStore struct {
	db   pgConn
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to dsn. maxConns <= 0 keeps the pgx
// default.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &PostgresStore{db: pool, pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// TableName converts a blob name to a table name
func TableName(blob string) string {
	return strings.TrimSuffix(blob, ".csv")
}

// Load selects every row of bucket.blob
func (s *PostgresStore) Load(ctx context.Context, bucket, blob string) (*table.Table, error) {
	if err := validate(bucket, blob); err != nil {
		return nil, err
	}
	ident := pgx.Identifier{bucket, TableName(blob)}.Sanitize()
	rows, err := s.db.Query(ctx, "SELECT * FROM "+ident)
	if err != nil {
		return nil, s.queryError(err, bucket, blob)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	out := table.New(names...)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", ident, err)
		}
		for i, v := range values {
			values[i] = fromPostgres(v)
		}
		if err := out.AppendRow(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError(err, bucket, blob)
	}
	return out, nil
}

func (s *PostgresStore) queryError(err error, bucket, blob string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s.%s", ErrNotFound, bucket, TableName(blob))
	}
	return fmt.Errorf("failed to query %s.%s: %w", bucket, TableName(blob), err)
}

// Save replaces bucket.blob with t inside one transaction. Column types
// are inferred from the cells.
func (s *PostgresStore) Save(ctx context.Context, t *table.Table, bucket, blob string) error {
	if err := validate(bucket, blob); err != nil {
		return err
	}
	name := TableName(blob)
	ident := pgx.Identifier{bucket, name}.Sanitize()
	columns := t.Columns()
	types := ColumnTypes(t)

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " " + types[i]
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{bucket}.Sanitize(),
		"DROP TABLE IF EXISTS " + ident,
		"CREATE TABLE " + ident + " (" + strings.Join(defs, ", ") + ")",
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", ident, err)
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{bucket, name}, columns, pgx.CopyFromRows(copyRows(t, types))); err != nil {
		return fmt.Errorf("failed to copy rows into %s: %w", ident, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", ident, err)
	}
	return nil
}

// EnsureBucket creates the schema for bucket
func (s *PostgresStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ValidateName("bucket", bucket); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{bucket}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", bucket, err)
	}
	return nil
}

// List returns the tables of schema bucket as blob names
func (s *PostgresStore) List(ctx context.Context, bucket string) ([]string, error) {
	if err := ValidateName("bucket", bucket); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name`,
		bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema %s: %w", bucket, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list schema %s: %w", bucket, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: schema %s", ErrNotFound, bucket)
	}
	for i := range names {
		names[i] += ".csv"
	}
	return names, nil
}

// Postgres column types used for inferred tables
const (
	typeDouble  = "double precision"
	typeBoolean = "boolean"
	typeText    = "text"
)

// ColumnTypes infers a Postgres type per column: double precision when
// every non-null cell is numeric, boolean when every one is a bool, text
// otherwise. All-null columns are text.
func ColumnTypes(t *table.Table) []string {
	columns := t.Columns()
	types := make([]string, len(columns))
	for i, c := range columns {
		numeric, boolean, seen := true, true, false
		for r := 0; r < t.Len(); r++ {
			v := t.Get(r, c)
			if table.IsNull(v) {
				continue
			}
			seen = true
			switch v.(type) {
			case float64:
				boolean = false
			case bool:
				numeric = false
			default:
				numeric, boolean = false, false
			}
		}
		switch {
		case !seen:
			types[i] = typeText
		case numeric:
			types[i] = typeDouble
		case boolean:
			types[i] = typeBoolean
		default:
			types[i] = typeText
		}
	}
	return types
}

func copyRows(t *table.Table, types []string) [][]any {
	columns := t.Columns()
	rows := make([][]any, t.Len())
	for r := range rows {
		row := make([]any, len(columns))
		for i, c := range columns {
			v := t.Get(r, c)
			switch {
			case table.IsNull(v):
				row[i] = nil
			case types[i] == typeText:
				row[i] = table.ToString(v)
			default:
				row[i] = v
			}
		}
		rows[r] = row
	}
	return rows
}

// fromPostgres converts a decoded pgx value to a table cell
func fromPostgres(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64, bool, string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return fmt.Sprint(v)
}

package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// A Query narrows down the rows read from a table.
type Query struct {
	// Where is a condition without the WHERE keyword, e.g. "Kind = ?".
	Where string
	Args  []any

	// OrderBy lists the sort columns without the ORDER BY keywords. Rows are
	// returned in insertion order if it is empty.
	OrderBy string

	// Limit caps the number of rows returned. Zero means no cap. Offset is
	// only applied with a limit.
	Limit  int
	Offset int
}

// A Reader reads a recording back.
type Reader struct {
	db *sql.DB
}

// OpenReader opens a recording file written by a DataRecorder. The file is
// opened read-only; a missing file fails the first read.
func OpenReader(file string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+file+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a Reader on an open database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close closes the underlying database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Tables lists the tables in the recording, sorted by name.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Events reads the recorded simulation events of a kind, or of every kind if
// kind is empty. It also returns how many events match in total, ignoring
// the limit.
func (r *Reader) Events(
	ctx context.Context,
	kind string,
	limit int,
) ([]EventEntry, int, error) {
	q := Query{Limit: limit}
	if kind != "" {
		q.Where = "Kind = ?"
		q.Args = []any{kind}
	}

	return Select[EventEntry](ctx, r, EventTable, q)
}

// ExecInfo reads the recorded properties of the run.
func (r *Reader) ExecInfo(ctx context.Context) ([]ExecInfo, error) {
	info, _, err := Select[ExecInfo](ctx, r, ExecTable, Query{})
	return info, err
}

// Select reads rows of a table into values of T. Columns are matched to
// fields by name; columns without a field are ignored. The total number of
// rows matching q.Where is returned along with the rows.
func Select[T any](
	ctx context.Context,
	r *Reader,
	table string,
	q Query,
) ([]T, int, error) {
	if !isIdentifier(table) {
		return nil, 0, fmt.Errorf("invalid table name %q", table)
	}

	where := ""
	if q.Where != "" {
		where = " WHERE " + q.Where
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+where, q.Args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}

	stmt := "SELECT * FROM " + table + where
	if q.OrderBy != "" {
		stmt += " ORDER BY " + q.OrderBy
	} else {
		stmt += " ORDER BY rowid"
	}
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, stmt, q.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	entries, err := scanAll[T](rows)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", table, err)
	}

	return entries, total, nil
}

func scanAll[T any](rows *sql.Rows) ([]T, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var entries []T
	for rows.Next() {
		var entry T
		v := reflect.ValueOf(&entry).Elem()

		targets := make([]any, len(columns))
		for i, col := range columns {
			field := v.FieldByName(col)
			if !field.IsValid() || !field.CanSet() {
				targets[i] = new(any)
				continue
			}
			targets[i] = field.Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	return strings.IndexFunc(s, func(c rune) bool {
		return !(c == '_' ||
			c >= 'a' && c <= 'z' ||
			c >= 'A' && c <= 'Z' ||
			c >= '0' && c <= '9')
	}) < 0
}

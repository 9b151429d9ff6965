package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams selects and pages the rows of a table.
type QueryParams struct {
	// Where holds the WHERE clause without the "WHERE" keyword, for example
	// "CodaID = ? AND Outcome = ?".
	Where string

	// Args holds the arguments for the placeholders in Where.
	Args []any

	// Limit is the maximum number of rows to return. Zero returns all.
	Limit int

	// Offset is the number of rows to skip. It only applies with a Limit.
	Offset int

	// OrderBy holds the ordering without the "ORDER BY" keywords, for
	// example "Time DESC".
	OrderBy string
}

// DataReader reads back what a DataRecorder stored.
type DataReader interface {
	// MapTable tells the reader which struct the rows of a table decode
	// into. Only mapped tables can be queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the tables stored in the database, in creation
	// order.
	ListTables(ctx context.Context) ([]string, error)

	// Count returns the number of rows of a table.
	Count(ctx context.Context, tableName string) (int, error)

	// Query returns pointers to the mapped struct of the selected rows,
	// along with the number of rows matching the filter before paging.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	db      *sql.DB
	typeMap map[string]reflect.Type
}

// NewReader opens a database file written by a DataRecorder, read only.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot open recording %s: %w", dbFilename, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a DataReader over an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

// OpenRecording opens a recording with every table of this package mapped.
func OpenRecording(dbFilename string) (DataReader, error) {
	r, err := NewReader(dbFilename)
	if err != nil {
		return nil, err
	}

	for table, sample := range RecordedTables() {
		r.MapTable(table, sample)
	}

	return r, nil
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.typeMap[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func (r *sqliteReader) Count(ctx context.Context, tableName string) (int, error) {
	var n int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+quoteIdent(tableName)).Scan(&n)

	return n, err
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	from := " FROM " + quoteIdent(tableName)
	if params.Where != "" {
		from += " WHERE " + params.Where
	}

	var total int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, params.Args...).
		Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT *" + from
	if params.OrderBy != "" {
		query += " ORDER BY " + params.OrderBy
	}

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", params.Limit, max(params.Offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, query, params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := scanRows(rows, structType)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

// scanRows decodes each row into a new struct, matching columns to fields by
// name. Columns without a field are skipped.
func scanRows(rows *sql.Rows, structType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fieldOf := make([]int, len(columns))
	for i, col := range columns {
		fieldOf[i] = -1
		if f, ok := structType.FieldByName(col); ok && len(f.Index) == 1 {
			fieldOf[i] = f.Index[0]
		}
	}

	results := []any{}
	for rows.Next() {
		entry := reflect.New(structType)
		targets := make([]any, len(columns))

		for i, field := range fieldOf {
			if field < 0 {
				targets[i] = new(any)
				continue
			}

			targets[i] = entry.Elem().Field(field).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, entry.Interface())
	}

	return results, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}

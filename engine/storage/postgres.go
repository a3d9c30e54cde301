package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/types"
)

// AllValue is the filter value meaning "do not filter"
const AllValue = "all"

// FactSource reads fact rows and the name lookups used to label them
type FactSource interface {
	ListFactRows(ctx context.Context, filter types.FactFilter) ([]types.FactRow, error)
	StoreNames(ctx context.Context, ids []string) (map[string]string, error)
	LocationNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Database is the PostgreSQL fact source
type Database struct {
	db  *sql.DB
	cfg *config.PostgreSQLConfig
	log logrus.FieldLogger
}

// NewDatabase creates an unconnected database handle
func NewDatabase(cfg *config.PostgreSQLConfig, log logrus.FieldLogger) *Database {
	return &Database{
		cfg: cfg,
		log: log.WithField("component", "postgres"),
	}
}

// NewDatabaseFromDB wraps an already opened connection pool
func NewDatabaseFromDB(db *sql.DB, log logrus.FieldLogger) *Database {
	return &Database{
		db:  db,
		log: log.WithField("component", "postgres"),
	}
}

// Connect opens the connection pool and verifies it with a ping
func (d *Database) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", d.cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(d.cfg.MaxOpenConns)
	db.SetMaxIdleConns(d.cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	d.db = db
	d.log.WithFields(logrus.Fields{
		"host":     d.cfg.Host,
		"database": d.cfg.Database,
	}).Info("Connected to PostgreSQL database")
	return nil
}

// DB returns the underlying connection pool
func (d *Database) DB() *sql.DB {
	return d.db
}

// Ping checks the connection
func (d *Database) Ping(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database not connected")
	}
	return d.db.PingContext(ctx)
}

// Close closes the connection pool
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// buildFactQuery renders the SELECT for filter with positional arguments
func buildFactQuery(filter types.FactFilter) (string, []any) {
	dateColumn := filter.Source.DateColumn()

	var conditions []string
	var args []any
	add := func(condition string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.DateFrom != nil {
		add(dateColumn+" >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add(dateColumn+" <= $%d", *filter.DateTo)
	}
	if filter.StoreID != "" && filter.StoreID != AllValue {
		add("store_id = $%d", filter.StoreID)
	}
	if filter.LocationID != "" && filter.LocationID != AllValue {
		add("location_id = $%d", filter.LocationID)
	}

	var query strings.Builder
	query.WriteString("SELECT * FROM ")
	query.WriteString(filter.Source.View())
	if len(conditions) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY ")
	query.WriteString(dateColumn)
	query.WriteString(" DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&query, " LIMIT $%d", len(args))
	}

	return query.String(), args
}

// ListFactRows reads the rows of the filter's fact view, newest first
func (d *Database) ListFactRows(ctx context.Context, filter types.FactFilter) ([]types.FactRow, error) {
	query, args := buildFactQuery(filter)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", filter.Source.View(), err)
	}
	defer rows.Close()

	result, err := scanFactRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", filter.Source.View(), err)
	}

	d.log.WithFields(logrus.Fields{
		"view": filter.Source.View(),
		"rows": len(result),
	}).Debug("Listed fact rows")
	return result, nil
}

// scanFactRows reads every column of every row into a FactRow. Text and
// numeric columns delivered as bytes are kept as strings.
func scanFactRows(rows *sql.Rows) ([]types.FactRow, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []types.FactRow{}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(types.FactRow, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
				continue
			}
			row[column] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// StoreNames maps store ids to names
func (d *Database) StoreNames(ctx context.Context, ids []string) (map[string]string, error) {
	return d.names(ctx, "stores", ids)
}

// LocationNames maps location ids to names
func (d *Database) LocationNames(ctx context.Context, ids []string) (map[string]string, error) {
	return d.names(ctx, "locations", ids)
}

func (d *Database) names(ctx context.Context, table string, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := d.db.QueryContext(ctx, "SELECT id, name FROM "+table+" WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return names, nil
}

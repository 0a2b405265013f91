package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("not found")

// StorageError wraps a failed database operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ListFilter narrows List. An empty Owner lists every record.
type ListFilter struct {
	Owner string
}

// Insert validates rec against the schema and writes it as a single committed row.
func (r *Repository) Insert(ctx context.Context, rec models.Record) (int64, error) {
	if err := r.schema.Validate(rec.Fields); err != nil {
		return 0, err
	}
	values := r.schema.Normalize(rec.Fields)

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	columns := []string{"owner"}
	args := []any{nullString(rec.Owner)}
	for _, name := range r.schema.FieldNames() {
		columns = append(columns, name)
		args = append(args, values[name])
	}
	var lat, lon sql.NullFloat64
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
	}
	columns = append(columns, "latitude", "longitude", "created_at")
	args = append(args, lat, lon, createdAt.UTC())

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.schema.Table, strings.Join(columns, ", "), r.dialect.placeholders(1, len(args)))

	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, &StorageError{Op: "insert record", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"record_id": id,
		"owner":     rec.Owner,
		"located":   rec.Location != nil,
	}).Debug("Record stored")
	return id, nil
}

// List returns matching records, newest first. It never returns nil.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Record, error) {
	fields := r.schema.FieldNames()
	query := fmt.Sprintf("SELECT id, owner, %s, latitude, longitude, created_at FROM %s",
		strings.Join(fields, ", "), r.schema.Table)

	var args []any
	if owner := strings.TrimSpace(filter.Owner); owner != "" {
		query += " WHERE owner = " + r.dialect.placeholder(1)
		args = append(args, owner)
	}
	query += " ORDER BY id DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		var (
			rec      models.Record
			owner    sql.NullString
			lat, lon sql.NullFloat64
		)
		texts := make([]string, len(fields))
		dest := []any{&rec.ID, &owner}
		for i := range texts {
			dest = append(dest, &texts[i])
		}
		dest = append(dest, &lat, &lon, &rec.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, &StorageError{Op: "scan record", Err: err}
		}

		rec.Owner = owner.String
		rec.Fields = make(map[string]string, len(fields))
		for i, name := range fields {
			rec.Fields[name] = texts[i]
		}
		if lat.Valid && lon.Valid {
			rec.Location = &models.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}
	return records, nil
}

// Delete removes the rows whose id is in ids and reports how many went away.
// An empty id set is a no-op.
func (r *Repository) Delete(ctx context.Context, ids []int64) (int64, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		query string
		args  []any
	)
	if r.dialect.name == postgresDialect.name {
		query = fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", r.schema.Table)
		args = []any{pq.Array(ids)}
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", r.schema.Table, r.dialect.placeholders(1, len(ids)))
		args = lo.Map(ids, func(id int64, _ int) any { return id })
	}

	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &StorageError{Op: "delete records", Err: err}
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "delete records", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"requested": len(ids),
		"removed":   removed,
	}).Info("Records deleted")
	return removed, nil
}

// Count returns the number of stored records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.schema.Table).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count records", Err: err}
	}
	return n, nil
}

// Stats summarises the table for the collector.
func (r *Repository) Stats(ctx context.Context) (types.RecordStats, error) {
	var s types.RecordStats
	err := r.DB.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*), COUNT(latitude), COUNT(DISTINCT owner) FROM %s", r.schema.Table,
	)).Scan(&s.Total, &s.Located, &s.Owners)
	if err != nil {
		return types.RecordStats{}, &StorageError{Op: "record stats", Err: err}
	}
	return s, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

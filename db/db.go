package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

type dialect struct {
	name      string
	driver    string
	idColumn  string
	floatType string
	timeType  string
	boolTrue  string
}

var (
	postgresDialect = dialect{
		name:      "postgres",
		driver:    "postgres",
		idColumn:  "id SERIAL PRIMARY KEY",
		floatType: "DOUBLE PRECISION",
		timeType:  "TIMESTAMP WITH TIME ZONE",
		boolTrue:  "true",
	}
	sqliteDialect = dialect{
		name:      "sqlite",
		driver:    "sqlite3",
		idColumn:  "id INTEGER PRIMARY KEY AUTOINCREMENT",
		floatType: "REAL",
		timeType:  "TIMESTAMP",
		boolTrue:  "1",
	}
)

func (d dialect) placeholder(n int) string {
	if d.name == postgresDialect.name {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// Repository owns the capture table and the API key table.
type Repository struct {
	DB      *sql.DB
	dialect dialect
	schema  models.Schema
}

// resolveDSN picks the driver for a connection string: postgres URLs and key=value DSNs go
// to lib/pq, everything else is treated as a SQLite file.
func resolveDSN(raw string) (dialect, string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return dialect{}, "", fmt.Errorf("database url is empty")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return postgresDialect, raw, nil
	case strings.Contains(raw, "host=") || strings.Contains(raw, "dbname="):
		return postgresDialect, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return sqliteDialect, strings.TrimPrefix(raw, "sqlite://"), nil
	case strings.HasPrefix(raw, "sqlite:"):
		return sqliteDialect, strings.TrimPrefix(raw, "sqlite:"), nil
	}
	return sqliteDialect, raw, nil
}

// Open connects, checks connectivity and creates the tables when missing.
func Open(ctx context.Context, rawURL string, schema models.Schema) (*Repository, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	d, dsn, err := resolveDSN(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if d.name == sqliteDialect.name {
		conn.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	repo := &Repository{DB: conn, dialect: d, schema: schema}
	if err := repo.createTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"driver": d.name,
		"table":  schema.Table,
		"schema": schema.Name,
	}).Info("Database ready")
	return repo, nil
}

// Schema returns the field set the repository was opened with.
func (r *Repository) Schema() models.Schema {
	return r.schema
}

// Driver names the active dialect ("postgres" or "sqlite").
func (r *Repository) Driver() string {
	return r.dialect.name
}

func (r *Repository) createTables(ctx context.Context) error {
	d := r.dialect
	t := r.schema.Table

	columns := []string{d.idColumn, "owner TEXT"}
	for _, f := range r.schema.Fields {
		columns = append(columns, f.Name+" TEXT NOT NULL")
	}
	columns = append(columns,
		"latitude "+d.floatType,
		"longitude "+d.floatType,
		"created_at "+d.timeType+" NOT NULL",
	)

	queries := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t\t%s\n\t\t)", t, strings.Join(columns, ",\n\t\t\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s (owner)", t, t),
		`CREATE TABLE IF NOT EXISTS api_keys (
			` + d.idColumn + `,
			key VARCHAR(64) NOT NULL UNIQUE,
			description TEXT,
			created_at ` + d.timeType + ` NOT NULL,
			last_used_at ` + d.timeType + `,
			is_active BOOLEAN NOT NULL DEFAULT ` + d.boolTrue + `
		)`,
	}

	for _, query := range queries {
		if _, err := r.DB.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

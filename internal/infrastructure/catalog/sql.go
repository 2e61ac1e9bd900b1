package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/seo401b/new-Allert/internal/domain"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLConfig holds configuration for a database-backed catalog
type SQLConfig struct {
	Table       string
	OrderColumn string // Optional; rows come back in the database's natural order otherwise
	Columns     Columns
	Logger      *slog.Logger
}

// SQLSource loads the catalog from a database table
type SQLSource struct {
	db          *sql.DB
	table       string
	orderColumn string
	columns     Columns
	logger      *slog.Logger
}

// OpenDB opens and pings a database using one of the registered drivers ("pgx" or "sqlite")
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "pgx", "sqlite":
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrCatalogLoadFailure, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrCatalogLoadFailure, driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", domain.ErrCatalogLoadFailure, driver, err)
	}

	return db, nil
}

// NewSQLSource creates a SQL catalog source. Table and column names must be plain identifiers.
func NewSQLSource(db *sql.DB, cfg SQLConfig) (*SQLSource, error) {
	columns := cfg.Columns.withDefaults()

	for _, ident := range []string{cfg.Table, columns.Name, columns.Image} {
		if !identifierPattern.MatchString(ident) {
			return nil, fmt.Errorf("%w: invalid identifier %q", domain.ErrCatalogLoadFailure, ident)
		}
	}
	if cfg.OrderColumn != "" && !identifierPattern.MatchString(cfg.OrderColumn) {
		return nil, fmt.Errorf("%w: invalid identifier %q", domain.ErrCatalogLoadFailure, cfg.OrderColumn)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLSource{
		db:          db,
		table:       cfg.Table,
		orderColumn: cfg.OrderColumn,
		columns:     columns,
		logger:      logger,
	}, nil
}

func (s *SQLSource) query() string {
	q := "SELECT * FROM " + s.table
	if s.orderColumn != "" {
		q += " ORDER BY " + s.orderColumn
	}
	return q
}

// Load selects every row of the table
func (s *SQLSource) Load(ctx context.Context) ([]domain.CatalogRow, error) {
	rows, err := s.db.QueryContext(ctx, s.query())
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrCatalogLoadFailure, s.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}
	if indexOf(cols, s.columns.Name) < 0 || indexOf(cols, s.columns.Image) < 0 {
		return nil, fmt.Errorf("%w: table %s lacks %q or %q",
			domain.ErrCatalogLoadFailure, s.table, s.columns.Name, s.columns.Image)
	}

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	var catalog []domain.CatalogRow
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrCatalogLoadFailure, err)
		}

		fields := make(map[string]string, len(cols))
		for i, col := range cols {
			if values[i].Valid {
				fields[col] = values[i].String
			}
		}

		catalog = append(catalog, domain.CatalogRow{
			Position:       len(catalog),
			Name:           strings.TrimSpace(fields[s.columns.Name]),
			ImageReference: strings.TrimSpace(fields[s.columns.Image]),
			Fields:         fields,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}

	s.logger.Info("catalog loaded", "source", "sql", "table", s.table, "rows", len(catalog))
	return catalog, nil
}

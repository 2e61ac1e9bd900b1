package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/seo401b/new-Allert/internal/domain"
)

// Default column names of the food safety catalog export
const (
	DefaultNameColumn  = "prdlstNm"
	DefaultImageColumn = "imgurl1"
)

// Columns names the catalog fields the resolver needs
type Columns struct {
	Name  string
	Image string
}

func (c Columns) withDefaults() Columns {
	if c.Name == "" {
		c.Name = DefaultNameColumn
	}
	if c.Image == "" {
		c.Image = DefaultImageColumn
	}
	return c
}

// CSVSource loads the catalog from a CSV file with a header row
type CSVSource struct {
	path     string
	columns  Columns
	encoding string
	logger   *slog.Logger
}

// CSVConfig holds configuration for a CSV catalog
type CSVConfig struct {
	Path     string
	Columns  Columns
	Encoding string // "utf-8" (default) or "euc-kr"
	Logger   *slog.Logger
}

// NewCSVSource creates a CSV catalog source
func NewCSVSource(cfg CSVConfig) *CSVSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{
		path:     cfg.Path,
		columns:  cfg.Columns.withDefaults(),
		encoding: cfg.Encoding,
		logger:   logger,
	}
}

// Load reads the whole file
func (s *CSVSource) Load(ctx context.Context) ([]domain.CatalogRow, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}
	defer f.Close()

	decoded, err := decodingReader(f, s.encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}

	rows, err := ParseCSV(ctx, decoded, s.columns)
	if err != nil {
		return nil, err
	}

	s.logger.Info("catalog loaded", "source", "csv", "path", s.path, "rows", len(rows))
	return rows, nil
}

// decodingReader converts r to UTF-8 and drops a leading byte order mark
func decodingReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case "euc-kr", "euckr", "cp949":
		return transform.NewReader(r, korean.EUCKR.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported catalog encoding %q", encoding)
	}
}

// ParseCSV reads catalog rows from UTF-8 CSV. Every column is kept in Fields.
func ParseCSV(ctx context.Context, r io.Reader, columns Columns) ([]domain.CatalogRow, error) {
	columns = columns.withDefaults()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", domain.ErrCatalogLoadFailure)
		}
		return nil, fmt.Errorf("%w: reading header: %w", domain.ErrCatalogLoadFailure, err)
	}
	layout, err := newTableLayout(header, columns)
	if err != nil {
		return nil, err
	}

	var rows []domain.CatalogRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
		}

		rows = append(rows, layout.row(len(rows), record))
	}

	return rows, nil
}

// tableLayout is a trimmed header row that names both required columns
type tableLayout struct {
	header  []string
	columns Columns
}

func newTableLayout(header []string, columns Columns) (tableLayout, error) {
	trimmed := make([]string, len(header))
	for i, h := range header {
		trimmed[i] = strings.TrimSpace(h)
	}

	for _, column := range []string{columns.Name, columns.Image} {
		if indexOf(trimmed, column) < 0 {
			return tableLayout{}, fmt.Errorf("%w: column %q not found", domain.ErrCatalogLoadFailure, column)
		}
	}
	return tableLayout{header: trimmed, columns: columns}, nil
}

// row keeps every column in Fields; short records keep what they have
func (l tableLayout) row(position int, record []string) domain.CatalogRow {
	fields := make(map[string]string, len(l.header))
	for i, col := range l.header {
		if i < len(record) {
			fields[col] = record[i]
		}
	}

	return domain.CatalogRow{
		Position:       position,
		Name:           strings.TrimSpace(fields[l.columns.Name]),
		ImageReference: strings.TrimSpace(fields[l.columns.Image]),
		Fields:         fields,
	}
}

func indexOf(header []string, column string) int {
	for i, h := range header {
		if h == column {
			return i
		}
	}
	return -1
}

package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/seo401b/new-Allert/internal/domain"
)

// XLSXSource loads the catalog from one sheet of an Excel workbook
type XLSXSource struct {
	path    string
	sheet   string
	columns Columns
	logger  *slog.Logger
}

// XLSXConfig holds configuration for a workbook catalog
type XLSXConfig struct {
	Path    string
	Sheet   string // Empty reads the first sheet
	Columns Columns
	Logger  *slog.Logger
}

// NewXLSXSource creates a workbook catalog source
func NewXLSXSource(cfg XLSXConfig) *XLSXSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXSource{
		path:    cfg.Path,
		sheet:   cfg.Sheet,
		columns: cfg.Columns.withDefaults(),
		logger:  logger,
	}
}

// Load reads the whole sheet
func (s *XLSXSource) Load(ctx context.Context) ([]domain.CatalogRow, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}
	defer f.Close()

	rows, err := ParseXLSX(ctx, f, s.sheet, s.columns)
	if err != nil {
		return nil, err
	}

	s.logger.Info("catalog loaded", "source", "xlsx", "path", s.path, "sheet", s.sheet, "rows", len(rows))
	return rows, nil
}

// ParseXLSX reads catalog rows from a workbook. The first row of the sheet is
// the header and every column is kept in Fields. Blank rows are skipped.
func ParseXLSX(ctx context.Context, r io.Reader, sheet string, columns Columns) ([]domain.CatalogRow, error) {
	columns = columns.withDefaults()

	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %w", domain.ErrCatalogLoadFailure, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrCatalogLoadFailure)
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !slices.Contains(sheets, sheet) {
		return nil, fmt.Errorf("%w: sheet %q not found", domain.ErrCatalogLoadFailure, sheet)
	}

	iter, err := book.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}
	defer iter.Close()

	var layout *tableLayout
	var rows []domain.CatalogRow
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
		}

		record, err := iter.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
		}

		if layout == nil {
			header, err := newTableLayout(record, columns)
			if err != nil {
				return nil, err
			}
			layout = &header
			continue
		}
		if blankRecord(record) {
			continue
		}

		rows = append(rows, layout.row(len(rows), record))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogLoadFailure, err)
	}
	if layout == nil {
		return nil, fmt.Errorf("%w: sheet %q is empty", domain.ErrCatalogLoadFailure, sheet)
	}

	return rows, nil
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

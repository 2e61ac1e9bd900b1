package usecase

import "github.com/seo401b/new-Allert/internal/domain"

// CatalogIndex is a read-only, name-keyed view over one catalog snapshot.
// It is safe for concurrent use once built.
type CatalogIndex struct {
	names []string
	rows  map[string]domain.CatalogRow
}

// NewCatalogIndex builds the index. Rows without a name are skipped.
// When names collide the last row wins, but the name keeps the position of its first appearance.
func NewCatalogIndex(rows []domain.CatalogRow) *CatalogIndex {
	idx := &CatalogIndex{
		names: make([]string, 0, len(rows)),
		rows:  make(map[string]domain.CatalogRow, len(rows)),
	}

	for _, row := range rows {
		if row.Name == "" {
			continue
		}
		if _, seen := idx.rows[row.Name]; !seen {
			idx.names = append(idx.names, row.Name)
		}
		idx.rows[row.Name] = row
	}

	return idx
}

// Names returns every distinct catalog name in enumeration order
func (i *CatalogIndex) Names() []string {
	return i.names
}

// Lookup returns the row registered under name
func (i *CatalogIndex) Lookup(name string) (domain.CatalogRow, bool) {
	row, ok := i.rows[name]
	return row, ok
}

// Len returns the number of distinct names
func (i *CatalogIndex) Len() int {
	return len(i.names)
}

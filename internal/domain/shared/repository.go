package shared

// DefaultPageSize is the page size of a list query that does not ask for one
const DefaultPageSize = 20

// Filter carries the paging and ordering of a list query. OrderBy names a
// field; each repository whitelists the fields it can sort by and falls back
// to its own default for anything else.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// Normalize starts unset paging at the first page of DefaultPageSize rows
// and caps the page size when maxPageSize > 0.
func (f Filter) Normalize(maxPageSize int) Filter {
	f.Page = max(f.Page, 1)
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if maxPageSize > 0 {
		f.PageSize = min(f.PageSize, maxPageSize)
	}
	return f
}

// Offset returns the row offset of the filter's page
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

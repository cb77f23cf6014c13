package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// sortColumns whitelists the columns a list query may be ordered by. Each column
// is accepted under its own name and under its camelCase JSON name.
type sortColumns struct {
	byName   map[string]string
	fallback string
}

func newSortColumns(fallback string, columns ...string) sortColumns {
	s := sortColumns{byName: make(map[string]string, 2*len(columns)), fallback: fallback}
	for _, col := range columns {
		s.byName[col] = col
		s.byName[camelCase(col)] = col
	}
	return s
}

// column resolves a requested sort field, falling back for empty or unknown names
func (s sortColumns) column(field string) string {
	if col, ok := s.byName[strings.TrimSpace(field)]; ok {
		return col
	}
	return s.fallback
}

// orderBy builds the ORDER BY clause. Anything other than "asc" sorts descending.
func (s sortColumns) orderBy(field, dir string) clause.OrderByColumn {
	return clause.OrderByColumn{
		Column: clause.Column{Name: s.column(field)},
		Desc:   !strings.EqualFold(strings.TrimSpace(dir), "asc"),
	}
}

func camelCase(column string) string {
	parts := strings.Split(column, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

var (
	orderSortColumns = newSortColumns("created_at",
		"order_id", "created_at", "updated_at", "order_time", "buyer_refund_amount",
		"refund_account_accounted_amount", "refund_account_status")

	refundDetailSortColumns = newSortColumns("created_at",
		"id", "created_at", "updated_at", "order_id", "refund_type", "refund_amount",
		"refund_date", "status", "accounting_status")

	returnIndexSortColumns = newSortColumns("updated_at",
		"id", "updated_at", "order_id", "return_status", "total_return_value")
)

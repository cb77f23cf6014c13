package csvimport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/erp/refundtracker/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// DefaultDateLayouts are the timestamp layouts seen in marketplace order exports
var DefaultDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
	"02 Jan 2006 15:04:05",
	"02 Jan 2006 15:04",
	"02 Jan 2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// cellKind is what a column's cells must parse as
type cellKind int

const (
	kindText cellKind = iota
	kindAmount
	kindPercentage
	kindDate
	kindIntLines
)

func (k cellKind) String() string {
	switch k {
	case kindAmount:
		return "amount"
	case kindPercentage:
		return "percentage"
	case kindDate:
		return "date"
	case kindIntLines:
		return "one integer per line"
	default:
		return "text"
	}
}

type columnRule struct {
	column   string
	kind     cellKind
	required bool
	unique   bool
}

// rowChecker records a warning for every cell that will not read as its column's
// kind. It never rejects a row: the sheet reader decides what a bad cell means.
type rowChecker struct {
	rules    []columnRule
	layouts  []string
	seen     map[string]int // unique column value -> first row
	warnings *warningLog
}

func newRowChecker(rules []columnRule, layouts []string, maxWarnings int) *rowChecker {
	return &rowChecker{
		rules:    rules,
		layouts:  layouts,
		seen:     make(map[string]int),
		warnings: newWarningLog(maxWarnings),
	}
}

func (c *rowChecker) check(row *Row) {
	for _, rule := range c.rules {
		value := row.Get(rule.column)
		if value == "" {
			if rule.required {
				c.warnings.add(RowError{
					Row: row.Line, Column: rule.column, Code: ErrCodeImportRequiredField,
					Message: "value is required",
				})
			}
			continue
		}

		if err := c.parse(rule.kind, value); err != nil {
			c.warnings.add(RowError{
				Row: row.Line, Column: rule.column, Code: ErrCodeImportInvalidType,
				Message: "expected " + rule.kind.String(), Value: value,
			})
			continue
		}

		if rule.unique {
			key := rule.column + "\x00" + value
			if first, dup := c.seen[key]; dup {
				c.warnings.add(RowError{
					Row: row.Line, Column: rule.column, Code: ErrCodeImportDuplicateInFile,
					Message: fmt.Sprintf("duplicate of row %d, the later row wins", first),
					Value:   value,
				})
			} else {
				c.seen[key] = row.Line
			}
		}
	}
}

func (c *rowChecker) parse(kind cellKind, value string) error {
	var err error
	switch kind {
	case kindAmount:
		_, err = valueobject.ParseAmount(value)
	case kindPercentage:
		_, err = valueobject.ParsePercentage(value)
	case kindDate:
		_, err = ParseDate(value, c.layouts)
	case kindIntLines:
		_, err = ParseIntLines(value)
	}
	return err
}

// ParseDate parses value with the first matching layout. A blank value is nil.
func ParseDate(value string, layouts []string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", value)
}

// ParseIntLines parses a multi-line cell of integers. Blank lines are zero and
// "3.0" is accepted as 3.
func ParseIntLines(value string) ([]int, error) {
	lines := SplitLines(value)
	out := make([]int, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		if n, err := strconv.Atoi(line); err == nil {
			out[i] = n
			continue
		}
		d, err := decimal.NewFromString(line)
		if err != nil || !d.IsInteger() {
			return nil, fmt.Errorf("line %d: invalid integer %q", i+1, line)
		}
		out[i] = int(d.IntPart())
	}
	return out, nil
}

// SplitLines splits a multi-line cell and trims each line
func SplitLines(value string) []string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	if strings.TrimSpace(value) == "" {
		return nil
	}
	lines := strings.Split(value, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

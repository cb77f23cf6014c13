package csvimport

import (
	"errors"
	"fmt"
)

// Warning codes of cell and row problems
const (
	ErrCodeImportMalformedRow    = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeImportRequiredField   = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeImportInvalidType     = "ERR_IMPORT_INVALID_TYPE"
	ErrCodeImportDuplicateInFile = "ERR_IMPORT_DUPLICATE_IN_FILE"
)

// Errors that reject a whole sheet
var (
	ErrEmptyFile       = errors.New("order sheet is empty")
	ErrInvalidEncoding = errors.New("order sheet is not valid UTF-8 text")
	ErrMissingHeader   = errors.New("order sheet header is missing required columns")
	ErrNoDataRows      = errors.New("order sheet contains no data rows")
	ErrFileTooLarge    = errors.New("order sheet exceeds the maximum size")
)

// RowError is a problem found in one row, and in one cell when Column is set
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// warningLog keeps the first max warnings and counts all of them
type warningLog struct {
	kept  []RowError
	max   int
	total int
}

func newWarningLog(max int) *warningLog {
	if max <= 0 {
		max = 100
	}
	return &warningLog{max: max}
}

func (w *warningLog) add(e RowError) {
	w.total++
	if len(w.kept) < w.max {
		w.kept = append(w.kept, e)
	}
}

func (w *warningLog) truncated() bool {
	return w.total > len(w.kept)
}

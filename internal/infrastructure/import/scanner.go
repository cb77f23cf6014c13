package csvimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// encodingSniffSize is how much of the decoded input is checked for valid UTF-8
const encodingSniffSize = 4096

// ParserOption configures how the raw CSV bytes are read
type ParserOption func(*parserConfig)

type parserConfig struct {
	delimiter rune
	encoding  encoding.Encoding
	maxBytes  int64
}

// WithDelimiter sets the field separator, ',' by default
func WithDelimiter(d rune) ParserOption {
	return func(c *parserConfig) { c.delimiter = d }
}

// WithEncoding decodes the input from enc, for example charmap.Windows1252 for
// sheets saved by older spreadsheet software. A byte order mark overrides it.
func WithEncoding(enc encoding.Encoding) ParserOption {
	return func(c *parserConfig) { c.encoding = enc }
}

// WithMaxBytes fails the read with ErrFileTooLarge past n input bytes. Zero means no limit.
func WithMaxBytes(n int64) ParserOption {
	return func(c *parserConfig) { c.maxBytes = n }
}

// Row is one CSV record. Cells are keyed by case-folded header, trimmed at both ends.
type Row struct {
	Line  int
	cells map[string]string
}

// Get returns the cell under header, ignoring case. Absent columns read as "".
func (r *Row) Get(header string) string {
	return r.cells[foldKey(header)]
}

// scanner reads a header record and then data records. Line counts records,
// so a multi-line cell still occupies one row, as in a spreadsheet.
type scanner struct {
	csv     *csv.Reader
	headers []string
	columns map[string]int
	line    int
}

func newScanner(in io.Reader, opts ...ParserOption) (*scanner, error) {
	cfg := parserConfig{delimiter: ','}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.maxBytes > 0 {
		in = &cappedReader{r: in, remaining: cfg.maxBytes}
	}
	var fallback transform.Transformer = transform.Nop
	if cfg.encoding != nil {
		fallback = cfg.encoding.NewDecoder()
	}
	buf := bufio.NewReaderSize(transform.NewReader(in, xunicode.BOMOverride(fallback)), encodingSniffSize)

	if err := checkUTF8(buf); err != nil {
		return nil, err
	}

	r := csv.NewReader(buf)
	r.Comma = cfg.delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	return &scanner{csv: r, columns: make(map[string]int)}, nil
}

// checkUTF8 validates the first block of decoded input. A rune cut at the end
// of the block is not an encoding error.
func checkUTF8(buf *bufio.Reader) error {
	head, err := buf.Peek(encodingSniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return fmt.Errorf("read order sheet: %w", err)
	}
	if len(strings.TrimSpace(string(head))) == 0 {
		return ErrEmptyFile
	}
	if len(head) == encodingSniffSize {
		for i := len(head) - 1; i >= len(head)-utf8.UTFMax; i-- {
			if utf8.RuneStart(head[i]) {
				if !utf8.FullRune(head[i:]) {
					head = head[:i]
				}
				break
			}
		}
	}
	if !utf8.Valid(head) {
		return ErrInvalidEncoding
	}
	return nil
}

func (s *scanner) readHeader() error {
	record, err := s.csv.Read()
	if err == io.EOF {
		return ErrEmptyFile
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	s.line = 1
	s.headers = make([]string, len(record))
	for i, h := range record {
		h = trimCell(h)
		s.headers[i] = h
		if _, dup := s.columns[foldKey(h)]; !dup {
			s.columns[foldKey(h)] = i
		}
	}
	return nil
}

// missing returns the required headers absent from the sheet
func (s *scanner) missing(required []string) []string {
	var out []string
	for _, h := range required {
		if _, ok := s.columns[foldKey(h)]; !ok {
			out = append(out, h)
		}
	}
	return out
}

// next returns the following record, or io.EOF. Malformed records come back as
// *csv.ParseError and the scanner can continue past them.
func (s *scanner) next() (*Row, error) {
	record, err := s.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	s.line++
	if err != nil {
		return nil, err
	}

	row := &Row{Line: s.line, cells: make(map[string]string, len(s.columns))}
	for key, i := range s.columns {
		if i < len(record) {
			row.cells[key] = trimCell(record[i])
		} else {
			row.cells[key] = ""
		}
	}
	return row, nil
}

func foldKey(header string) string {
	return cases.Fold().String(header)
}

// trimCell trims whitespace, including no-break spaces, around a cell while
// keeping the line breaks inside a multi-line cell
func trimCell(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ' '
	})
}

// cappedReader returns ErrFileTooLarge once more than remaining bytes are read
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, ErrFileTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}

// Package sourcetable defines the tabular value flowing through the source
// and compute pipeline, together with its CSV form and the helpers used to
// resolve a table from a source reference.
package sourcetable

import (
	"regexp"
	"strings"
)

const (
	// Separator is the cell separator used for the CSV form of a table.
	Separator = ";"

	// NewLine separates rows in the CSV form of a table.
	NewLine = "\n"

	// escapedSeparator replaces a separator found inside a cell when escaping.
	escapedSeparator = ","
)

// sourceRefPattern matches a reference to another source's result,
// e.g. ${source::monitors.disk.discovery.sources.source1}.
var sourceRefPattern = regexp.MustCompile(`\$\{source::([^\s}]+)\}`)

// Table is the result of a source or compute step: rows of string cells,
// an optional raw text form and optional header names.
type Table struct {
	Rows    [][]string `json:"rows"`
	Raw     *string    `json:"raw,omitempty"`
	Headers []string   `json:"headers,omitempty"`
}

// Empty returns a new table with no rows and no raw text.
func Empty() *Table {
	return &Table{Rows: [][]string{}}
}

// FromRows builds a table holding a deep copy of rows. Raw is left unset.
func FromRows(rows [][]string) *Table {
	return &Table{Rows: copyRows(rows)}
}

// FromRaw builds a table carrying only raw text.
func FromRaw(raw string) *Table {
	t := Empty()
	t.SetRaw(raw)
	return t
}

// SetRaw replaces the raw text of the table.
func (t *Table) SetRaw(raw string) {
	t.Raw = &raw
}

// RawText returns the raw text, or "" when absent.
func (t *Table) RawText() string {
	if t == nil || t.Raw == nil {
		return ""
	}
	return *t.Raw
}

// HasRaw reports whether the table carries raw text, blank or not.
func (t *Table) HasRaw() bool {
	return t != nil && t.Raw != nil
}

// IsEmpty reports whether the table has neither non-blank raw text nor rows.
func (t *Table) IsEmpty() bool {
	if t == nil {
		return true
	}
	return strings.TrimSpace(t.RawText()) == "" && len(t.Rows) == 0
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	if t == nil {
		return Empty()
	}
	c := &Table{Rows: copyRows(t.Rows)}
	if t.Raw != nil {
		c.SetRaw(*t.Raw)
	}
	if t.Headers != nil {
		c.Headers = append([]string(nil), t.Headers...)
	}
	return c
}

// RefreshRaw regenerates the raw text from the rows, unescaped.
func (t *Table) RefreshRaw() {
	t.SetRaw(ToCSV(t.Rows, Separator, false))
}

// ToCSV serializes rows: cells joined by sep, a trailing sep on every line
// and lines joined by a newline. When escape is set, a sep occurring inside
// a cell is replaced with a comma first.
func ToCSV(rows [][]string, sep string, escape bool) string {
	if len(rows) == 0 {
		return ""
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for _, cell := range row {
			if escape && sep != "" {
				cell = strings.ReplaceAll(cell, sep, escapedSeparator)
			}
			b.WriteString(cell)
			b.WriteString(sep)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, NewLine)
}

// FromCSV parses text produced by ToCSV back into rows. Each line gets a
// trailing sep when missing, is split keeping empty cells, and loses the
// phantom element after the last sep. Empty rows are discarded.
func FromCSV(text, sep string) [][]string {
	rows := [][]string{}
	if text == "" || sep == "" {
		return rows
	}

	for _, line := range splitLines(text) {
		if line == "" {
			continue
		}
		if !strings.HasSuffix(line, sep) {
			line += sep
		}
		cells := strings.Split(line, sep)
		cells = cells[:len(cells)-1]
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, cells)
	}
	return rows
}

// Namespace gives access to the source results already computed for one
// connector on one host.
type Namespace interface {
	SourceTable(key string) (*Table, bool)
}

// IsReference reports whether key contains a ${source::...} reference.
func IsReference(key string) bool {
	return sourceRefPattern.MatchString(key)
}

// ReferencePath extracts the path of the first ${source::path} reference in
// key, or "" when there is none.
func ReferencePath(key string) string {
	m := sourceRefPattern.FindStringSubmatch(key)
	if m == nil {
		return ""
	}
	return m[1]
}

// ReferencePaths returns every ${source::path} path found in text, in order.
func ReferencePaths(text string) []string {
	var paths []string
	for _, m := range sourceRefPattern.FindAllStringSubmatch(text, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// ReplaceReferences rewrites every ${source::path} occurrence in text with
// the value returned by fn.
func ReplaceReferences(text string, fn func(path string) string) string {
	return sourceRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		return fn(sourceRefPattern.FindStringSubmatch(match)[1])
	})
}

// Lookup resolves key to a table. A source reference is looked up in ns;
// any other text is parsed as literal CSV into a throwaway table.
func Lookup(key string, ns Namespace) (*Table, bool) {
	if key == "" {
		return nil, false
	}

	if path := ReferencePath(key); path != "" {
		if ns == nil {
			return nil, false
		}
		return ns.SourceTable(path)
	}

	t := FromRows(FromCSV(key, Separator))
	t.SetRaw(key)
	return t, true
}

func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, append([]string(nil), row...))
	}
	return out
}

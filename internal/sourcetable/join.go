package sourcetable

import "strings"

// JoinOptions controls how Join matches and completes rows.
type JoinOptions struct {
	// LeftKey and RightKey are the 1-indexed key columns.
	LeftKey  int
	RightKey int

	// DefaultRightLine, when non-empty, is appended to left rows that have no
	// match in the right table (left outer join). Cells are ;-separated.
	DefaultRightLine string

	// WBEMKeys compares keys as WBEM object paths: the namespace prefix up to
	// the first ':' is ignored.
	WBEMKeys bool

	// CaseSensitive disables case-insensitive key comparison.
	CaseSensitive bool
}

// Join combines left and right rows whose key columns are equal. Each
// matching pair produces the left row followed by the right row. Rows shorter
// than their key column never match. Invalid key columns yield no rows.
func Join(left, right [][]string, opts JoinOptions) [][]string {
	result := [][]string{}
	if opts.LeftKey < 1 || opts.RightKey < 1 {
		return result
	}

	var defaultRight []string
	if opts.DefaultRightLine != "" {
		defaultRight = strings.Split(opts.DefaultRightLine, Separator)
		// "a;b;" carries a trailing separator, not an extra empty cell
		if strings.HasSuffix(opts.DefaultRightLine, Separator) {
			defaultRight = defaultRight[:len(defaultRight)-1]
		}
	}

	index := make(map[string][][]string)
	for _, row := range right {
		if len(row) < opts.RightKey {
			continue
		}
		k := normalizeKey(row[opts.RightKey-1], opts)
		index[k] = append(index[k], row)
	}

	for _, row := range left {
		if len(row) < opts.LeftKey {
			continue
		}
		matches := index[normalizeKey(row[opts.LeftKey-1], opts)]
		if len(matches) == 0 {
			if defaultRight != nil {
				result = append(result, concatRow(row, defaultRight))
			}
			continue
		}
		for _, m := range matches {
			result = append(result, concatRow(row, m))
		}
	}
	return result
}

func normalizeKey(k string, opts JoinOptions) string {
	if opts.WBEMKeys {
		if i := strings.Index(k, ":"); i >= 0 {
			k = k[i+1:]
		}
		k = strings.TrimSpace(k)
	}
	if !opts.CaseSensitive {
		k = strings.ToLower(k)
	}
	return k
}

func concatRow(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

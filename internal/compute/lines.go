package compute

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

func keepColumns(log *zap.Logger, t *sourcetable.Table, c *connector.KeepColumns) *sourcetable.Table {
	columns, err := parseIntList(c.ColumnNumbers)
	if err != nil || len(columns) == 0 {
		log.Warn("Invalid column numbers, the table remains unchanged", zap.String("columnNumbers", c.ColumnNumbers))
		return nil
	}
	sort.Ints(columns)

	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		kept := make([]string, 0, len(columns))
		for _, col := range columns {
			if col < 1 || col > len(row) {
				log.Warn("Column out of range, the table remains unchanged", zap.Int("column", col), zap.Int("width", len(row)))
				return nil
			}
			kept = append(kept, row[col-1])
		}
		rows = append(rows, kept)
	}
	t.Rows = rows
	return finish(t)
}

// matchingLines keeps (keep=true) or drops rows according to the column
// value. When keeping, a row must match both the expression and the value
// list. When excluding, a row matching either is dropped.
func matchingLines(log *zap.Logger, t *sourcetable.Table, column int, expr, valueList string, keep bool) *sourcetable.Table {
	if column < 1 || len(t.Rows) == 0 {
		log.Warn("Invalid column or empty table, the table remains unchanged", zap.Int("column", column))
		return nil
	}

	var matcher interface{ MatchString(string) bool }
	if expr != "" {
		re, err := sourcetable.CompilePSL(expr, true)
		if err != nil {
			log.Warn("Invalid regular expression, the table remains unchanged", zap.String("regExp", expr), zap.Error(err))
			return nil
		}
		matcher = re
	}

	var values map[string]struct{}
	if valueList != "" {
		values = make(map[string]struct{})
		for _, v := range strings.Split(valueList, ",") {
			values[strings.ToLower(v)] = struct{}{}
		}
	}

	idx := column - 1
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx >= len(row) {
			log.Warn("Row shorter than the column, the table remains unchanged", zap.Int("column", column))
			return nil
		}
		cell := row[idx]

		matchesExpr := matcher == nil || matcher.MatchString(cell)
		_, listed := values[strings.ToLower(cell)]
		matchesList := values == nil || listed

		if keep {
			if matchesExpr && matchesList {
				rows = append(rows, row)
			}
			continue
		}
		exprHit := matcher != nil && matcher.MatchString(cell)
		listHit := values != nil && listed
		if !exprHit && !listHit {
			rows = append(rows, row)
		}
	}
	t.Rows = rows
	return finish(t)
}

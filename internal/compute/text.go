package compute

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// intOperand resolves a substring bound: a $n reference or an integer.
func intOperand(value string, row []string) (int, bool) {
	o, ok := parseOperand(value)
	if !ok {
		return 0, false
	}
	s, ok := o.resolve(row)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func substring(log *zap.Logger, t *sourcetable.Table, c *connector.Substring) *sourcetable.Table {
	if c.Column < 1 {
		log.Warn("Invalid column index, the table remains unchanged", zap.Int("column", c.Column))
		return nil
	}
	if _, ok := parseOperand(c.Start); !ok {
		log.Warn("Invalid start, the table remains unchanged", zap.String("start", c.Start))
		return nil
	}
	if _, ok := parseOperand(c.Length); !ok {
		log.Warn("Invalid length, the table remains unchanged", zap.String("length", c.Length))
		return nil
	}

	idx := c.Column - 1
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		start, okStart := intOperand(c.Start, row)
		length, okLength := intOperand(c.Length, row)
		if !okStart || !okLength {
			continue
		}

		cell := []rune(row[idx])
		begin := start - 1
		end := begin + length
		if begin < 0 || begin > end || end > len(cell) {
			continue
		}
		row[idx] = string(cell[begin:end])
	}
	return finish(t)
}

func extract(log *zap.Logger, t *sourcetable.Table, c *connector.Extract) *sourcetable.Table {
	if c.Column < 1 || c.SubColumn < 1 || c.SubSeparators == "" {
		log.Warn("Invalid extract parameters, the table remains unchanged",
			zap.Int("column", c.Column),
			zap.Int("subColumn", c.SubColumn),
			zap.String("subSeparators", c.SubSeparators),
		)
		return nil
	}

	idx := c.Column - 1
	sub := strconv.Itoa(c.SubColumn)
	for _, row := range t.Rows {
		if idx >= len(row) {
			log.Warn("Row shorter than the column, the table remains unchanged", zap.Int("column", c.Column))
			return nil
		}
		row[idx] = sourcetable.NthArgf(row[idx], sub, c.SubSeparators, "")
	}
	return finish(t)
}

func extractPropertyFromWBEMPath(log *zap.Logger, t *sourcetable.Table, c *connector.ExtractPropertyFromWBEMPath) *sourcetable.Table {
	if c.Column < 1 || c.PropertyName == "" {
		log.Warn("Invalid parameters, the table remains unchanged",
			zap.Int("column", c.Column),
			zap.String("property", c.PropertyName),
		)
		return nil
	}

	idx := c.Column - 1
	suffix := "." + strings.ToLower(c.PropertyName)
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		for _, pair := range strings.Split(row[idx], ",") {
			key, value, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			if strings.HasSuffix("."+strings.ToLower(key), suffix) {
				row[idx] = strings.TrimSpace(strings.ReplaceAll(value, `"`, ""))
				break
			}
		}
	}
	return finish(t)
}

func concat(log *zap.Logger, t *sourcetable.Table, column int, value string, left bool) *sourcetable.Table {
	if column < 1 || len(t.Rows) == 0 {
		log.Warn("Invalid column or empty table, the table remains unchanged", zap.Int("column", column))
		return nil
	}

	join := func(cell, v string) string {
		if left {
			return v + cell
		}
		return cell + v
	}

	idx := column - 1
	width := len(t.Rows[0])

	switch {
	case column <= width:
		ref := columnIndex(value)
		needsSplit := false
		for _, row := range t.Rows {
			if idx >= len(row) {
				log.Warn("Row shorter than the column, the table remains unchanged", zap.Int("column", column))
				return nil
			}
			if ref >= 0 {
				if ref >= len(row) {
					log.Warn("Referenced column out of range, the table remains unchanged", zap.String("value", value))
					return nil
				}
				row[idx] = join(row[idx], row[ref])
				continue
			}
			v, ok := sourcetable.ReplaceColumnReferences(value, row)
			if !ok {
				log.Warn("Referenced column out of range, the table remains unchanged", zap.String("value", value))
				return nil
			}
			row[idx] = join(row[idx], v)
			needsSplit = needsSplit || strings.Contains(v, sourcetable.Separator)
		}
		if needsSplit {
			resplit(t)
		}
	case column == width+1:
		for i, row := range t.Rows {
			t.Rows[i] = append(row, value)
		}
	default:
		log.Warn("Column beyond the table width, the table remains unchanged", zap.Int("column", column), zap.Int("width", width))
		return nil
	}
	return finish(t)
}

func duplicateColumn(log *zap.Logger, t *sourcetable.Table, c *connector.DuplicateColumn) *sourcetable.Table {
	if c.Column < 1 {
		log.Warn("Invalid column index, the table remains unchanged", zap.Int("column", c.Column))
		return nil
	}

	idx := c.Column - 1
	for i, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		out := make([]string, 0, len(row)+1)
		out = append(out, row[:idx+1]...)
		out = append(out, row[idx:]...)
		t.Rows[i] = out
	}
	return finish(t)
}

func replace(log *zap.Logger, t *sourcetable.Table, c *connector.Replace) *sourcetable.Table {
	if c.Column < 1 || c.ExistingValue == "" {
		log.Warn("Invalid replace parameters, the table remains unchanged",
			zap.Int("column", c.Column),
			zap.String("existingValue", c.ExistingValue),
		)
		return nil
	}

	idx := c.Column - 1
	oldRef := columnIndex(c.ExistingValue)
	newRef := columnIndex(c.NewValue)
	for _, row := range t.Rows {
		if !inRange(row, idx) {
			continue
		}
		oldValue, newValue := c.ExistingValue, c.NewValue
		if oldRef >= 0 {
			if !inRange(row, oldRef) {
				continue
			}
			oldValue = row[oldRef]
		}
		if newRef >= 0 {
			if !inRange(row, newRef) {
				continue
			}
			newValue = row[newRef]
		}
		if oldValue == "" {
			continue
		}
		row[idx] = strings.ReplaceAll(row[idx], oldValue, newValue)
	}
	resplit(t)
	return finish(t)
}

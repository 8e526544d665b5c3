package compute

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// mathOp combines two operands. ok is false when the result is undefined.
type mathOp func(a, b float64) (result float64, ok bool)

func add(a, b float64) (float64, bool)      { return a + b, true }
func subtract(a, b float64) (float64, bool) { return a - b, true }
func multiply(a, b float64) (float64, bool) { return a * b, true }

func divide(a, b float64) (float64, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

// formatNumber renders a result without a trailing ".0" on integral values.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// operand resolves the second operand of a math compute. It is either a
// column reference or a number.
type operand struct {
	column int
	value  string
}

func parseOperand(value string) (operand, bool) {
	if idx := columnIndex(value); idx >= 0 {
		return operand{column: idx}, true
	} else if columnPattern.MatchString(value) {
		// "$0" is not a column
		return operand{}, false
	}
	value = strings.TrimSpace(value)
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return operand{}, false
	}
	return operand{column: -1, value: value}, true
}

func (o operand) resolve(row []string) (string, bool) {
	if o.column < 0 {
		return o.value, true
	}
	if o.column >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[o.column]), true
}

func arithmetic(log *zap.Logger, t *sourcetable.Table, column int, value string, op mathOp) *sourcetable.Table {
	return combine(log, t, column, value, func(cell, other string) (string, bool) {
		a, errA := strconv.ParseFloat(cell, 64)
		b, errB := strconv.ParseFloat(other, 64)
		if errA != nil || errB != nil {
			log.Warn("Non-numeric operand, the cell remains unchanged",
				zap.String("cell", cell),
				zap.String("operand", other),
			)
			return "", false
		}
		result, ok := op(a, b)
		if !ok {
			return "", false
		}
		return formatNumber(result), true
	})
}

// combine replaces the cell at column with fn applied to the cell and the
// resolved operand. Cells for which fn fails are left unchanged.
func combine(log *zap.Logger, t *sourcetable.Table, column int, value string, fn func(cell, other string) (string, bool)) *sourcetable.Table {
	if column < 1 {
		log.Warn("Invalid column index, the table remains unchanged", zap.Int("column", column))
		return nil
	}
	second, ok := parseOperand(value)
	if !ok {
		log.Warn("Invalid operand, the table remains unchanged", zap.String("value", value))
		return nil
	}

	idx := column - 1
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		other, ok := second.resolve(row)
		if cell == "" || !ok || other == "" {
			continue
		}
		if result, ok := fn(cell, other); ok {
			row[idx] = result
		}
	}
	return finish(t)
}

// bitwiseAnd works on 64-bit integers so large masks keep every bit.
func bitwiseAnd(log *zap.Logger, t *sourcetable.Table, c *connector.And) *sourcetable.Table {
	return combine(log, t, c.Column, c.Value, func(cell, other string) (string, bool) {
		a, errA := strconv.ParseInt(cell, 10, 64)
		b, errB := strconv.ParseInt(other, 10, 64)
		if errA != nil || errB != nil {
			log.Warn("Non-integer operand, the cell remains unchanged",
				zap.String("cell", cell),
				zap.String("operand", other),
			)
			return "", false
		}
		return strconv.FormatInt(a&b, 10), true
	})
}

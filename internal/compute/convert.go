package compute

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// Simple status labels, from best to worst.
const (
	StatusUnknown = "UNKNOWN"
	StatusOK      = "OK"
	StatusWarn    = "WARN"
	StatusAlarm   = "ALARM"
)

var (
	hexPattern = regexp.MustCompile(`^[0-9A-Fa-f]+$`)

	statusSeverity = map[string]int{
		StatusOK:    1,
		StatusWarn:  2,
		StatusAlarm: 3,
		"DEGRADED":  2,
		"FAILED":    3,
	}

	severityStatus = []string{StatusUnknown, StatusOK, StatusWarn, StatusAlarm}
)

// WorstStatus returns the most severe status of values: ALARM over WARN over
// OK. Values that are not a known status are ignored, and UNKNOWN is returned
// when none is known.
func WorstStatus(values []string) string {
	worst := 0
	for _, v := range values {
		if s := statusSeverity[strings.ToUpper(strings.TrimSpace(v))]; s > worst {
			worst = s
		}
	}
	return severityStatus[worst]
}

func convert(log *zap.Logger, t *sourcetable.Table, c *connector.Convert) *sourcetable.Table {
	if c.Column < 1 {
		log.Warn("Invalid column index, the table remains unchanged", zap.Int("column", c.Column))
		return nil
	}

	var fn func(string) (string, bool)
	switch c.ConversionType {
	case connector.ConvertHex2Dec:
		fn = hex2Dec
	case connector.ConvertArray2SimpleStatus:
		fn = array2SimpleStatus
	default:
		log.Warn("Unknown conversion type, the table remains unchanged", zap.String("conversion", string(c.ConversionType)))
		return nil
	}

	idx := c.Column - 1
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		if v, ok := fn(row[idx]); ok {
			row[idx] = v
		} else {
			log.Debug("Cannot convert value", zap.String("value", row[idx]))
		}
	}
	return finish(t)
}

func hex2Dec(value string) (string, bool) {
	value = strings.ReplaceAll(value, "0x", "")
	value = strings.ReplaceAll(value, ":", "")
	value = strings.Join(strings.Fields(value), "")
	if !hexPattern.MatchString(value) {
		return "", false
	}
	n, err := strconv.ParseInt(value, 16, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}

func array2SimpleStatus(value string) (string, bool) {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == '|' || r == '\n' })
	return WorstStatus(parts), true
}

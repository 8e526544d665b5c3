package compute

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

const defaultArraySeparator = "|"

func translate(log *zap.Logger, t *sourcetable.Table, c *connector.Translate, env Env) *sourcetable.Table {
	if c.Column < 1 {
		log.Warn("Invalid column index, the table remains unchanged", zap.Int("column", c.Column))
		return nil
	}
	table, ok := lookupTranslations(c.Translations, c.TranslationTable, env)
	if !ok {
		log.Warn("Translation table not found, the table remains unchanged", zap.String("translationTable", c.TranslationTable))
		return nil
	}

	idx := c.Column - 1
	needsSplit := false
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		v, ok := table.Lookup(row[idx])
		if !ok {
			log.Warn("No translation and no default for value", zap.String("value", row[idx]))
			continue
		}
		row[idx] = v
		needsSplit = needsSplit || strings.Contains(v, sourcetable.Separator)
	}
	if needsSplit {
		resplit(t)
	}
	return finish(t)
}

func arrayTranslate(log *zap.Logger, t *sourcetable.Table, c *connector.ArrayTranslate, env Env) *sourcetable.Table {
	if c.Column < 1 {
		log.Warn("Invalid column index, the table remains unchanged", zap.Int("column", c.Column))
		return nil
	}
	table, ok := lookupTranslations(c.Translations, c.TranslationTable, env)
	if !ok {
		log.Warn("Translation table not found, the table remains unchanged", zap.String("translationTable", c.TranslationTable))
		return nil
	}

	arraySep := c.ArraySeparator
	if arraySep == "" {
		arraySep = defaultArraySeparator
	}
	resultSep := c.ResultSeparator
	if resultSep == "" {
		resultSep = defaultArraySeparator
	}

	idx := c.Column - 1
	for _, row := range t.Rows {
		if idx >= len(row) {
			log.Warn("Row shorter than the column, the table remains unchanged", zap.Int("column", c.Column))
			return nil
		}
		values := trimTrailingEmpty(strings.Split(row[idx], arraySep))
		translated := make([]string, 0, len(values))
		for _, v := range values {
			if tr, ok := table.Lookup(v); ok && strings.TrimSpace(tr) != "" {
				translated = append(translated, tr)
			}
		}
		row[idx] = strings.Join(translated, resultSep)
	}
	return finish(t)
}

func perBitTranslation(log *zap.Logger, t *sourcetable.Table, c *connector.PerBitTranslation, env Env) *sourcetable.Table {
	if c.Column < 1 || c.BitList == "" {
		log.Warn("Invalid parameters, the table remains unchanged", zap.Int("column", c.Column), zap.String("bitList", c.BitList))
		return nil
	}
	table, ok := lookupTranslations(c.Translations, c.TranslationTable, env)
	if !ok {
		log.Warn("Translation table not found, the table remains unchanged", zap.String("translationTable", c.TranslationTable))
		return nil
	}
	bits, err := parseIntList(c.BitList)
	if err != nil {
		log.Warn("Invalid bit list, the table remains unchanged", zap.String("bitList", c.BitList), zap.Error(err))
		return nil
	}

	idx := c.Column - 1
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil {
			log.Warn("Non-numeric value, the table remains unchanged", zap.String("value", row[idx]))
			return nil
		}
		value := int64(f)

		var parts []string
		for _, bit := range bits {
			state := (value >> uint(bit)) & 1
			key := strconv.Itoa(bit) + "," + strconv.FormatInt(state, 10)
			if tr, ok := table.Lookup(key); ok && strings.TrimSpace(tr) != "" {
				parts = append(parts, tr)
			}
		}
		row[idx] = strings.Join(parts, " - ")
	}
	return finish(t)
}

// trimTrailingEmpty drops empty trailing elements, so "a|b|" yields [a b].
func trimTrailingEmpty(values []string) []string {
	for len(values) > 0 && values[len(values)-1] == "" {
		values = values[:len(values)-1]
	}
	return values
}

// parseIntList parses a comma-separated list of non-negative integers.
func parseIntList(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

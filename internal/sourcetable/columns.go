package sourcetable

import (
	"strconv"
	"strings"
)

// ReplaceColumnReferences replaces every "$n" (n ≥ 1) found in text with the
// n-th cell of row. "$$" is an escaped dollar left for the caller to
// unescape, so "$$1" is literal while "$$$1" is a dollar followed by a
// reference. It returns false when a reference points past the end of row.
func ReplaceColumnReferences(text string, row []string) (string, bool) {
	if !strings.Contains(text, "$") {
		return text, true
	}

	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '$' && i+1 < len(text) && text[i+1] == '$' {
			b.WriteString("$$")
			i++
			continue
		}
		if c != '$' || i+1 >= len(text) || text[i+1] < '1' || text[i+1] > '9' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(text[i+1 : j])
		if err != nil || n > len(row) {
			return "", false
		}
		b.WriteString(row[n-1])
		i = j - 1
	}
	return b.String(), true
}

// UnescapeDollars turns "$$" back into "$".
func UnescapeDollars(text string) string {
	return strings.ReplaceAll(text, "$$", "$")
}

package sourcetable

import (
	"regexp"
	"strconv"
	"strings"
)

// PSLRegexp converts a legacy PSL regular expression to Go syntax. In PSL,
// parentheses, pipes and braces are literals, and \< \> are word boundaries.
func PSLRegexp(psl string) string {
	if psl == "" {
		return ""
	}
	if psl == "." {
		return ".+"
	}

	var b strings.Builder
	inRange := false
	for i := 0; i < len(psl); i++ {
		c := psl[i]
		switch {
		case c == '\\' && i < len(psl)-1:
			if inRange {
				b.WriteString(`\\`)
				continue
			}
			next := psl[i+1]
			i++
			switch {
			case next == '<' || next == '>':
				b.WriteString(`\b`)
			case strings.IndexByte(`^$.*+?[]\`, next) >= 0:
				b.WriteByte('\\')
				b.WriteByte(next)
			default:
				b.WriteByte(next)
			}
		case c == '(' || c == ')' || c == '|' || c == '{' || c == '}':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '[':
			inRange = true
			b.WriteByte(c)
		case c == ']':
			inRange = false
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CompilePSL compiles a PSL expression, optionally case-insensitive.
func CompilePSL(psl string, caseInsensitive bool) (*regexp.Regexp, error) {
	expr := PSLRegexp(psl)
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// FilterLines drops removeHeader lines from the start and removeFooter lines
// from the end, then removes lines matching exclude and keeps only lines
// matching keep. Empty expressions are ignored.
func FilterLines(lines []string, removeHeader, removeFooter int, exclude, keep string) ([]string, error) {
	begin := removeHeader
	if begin < 0 {
		begin = 0
	}
	end := len(lines) - removeFooter
	if removeFooter < 0 {
		end = len(lines)
	}
	if begin >= end {
		return []string{}, nil
	}

	var excludeRe, keepRe *regexp.Regexp
	var err error
	if exclude != "" {
		if excludeRe, err = CompilePSL(exclude, false); err != nil {
			return nil, err
		}
	}
	if keep != "" {
		if keepRe, err = CompilePSL(keep, false); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, end-begin)
	for _, line := range lines[begin:end] {
		if excludeRe != nil && excludeRe.MatchString(line) {
			continue
		}
		if keepRe != nil && !keepRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// SelectColumns splits each line on any of the separators characters and
// keeps the selected columns ("1,3", "2-4", "-2", "3-"), joined with ";".
// With no separators or no selection, lines are returned unchanged.
func SelectColumns(lines []string, separators, selectColumns string) []string {
	selectColumns = strings.Join(strings.Fields(selectColumns), "")
	if separators == "" || selectColumns == "" {
		return lines
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		// a ';' in the data would create spurious columns once re-parsed
		switch {
		case !strings.Contains(separators, Separator) && !strings.Contains(separators, ","):
			line = strings.ReplaceAll(line, Separator, ",")
		case !strings.Contains(separators, Separator):
			line = strings.ReplaceAll(line, Separator, "")
		}

		if strings.ContainsAny(separators, " \t") {
			out = append(out, NthArg(line, selectColumns, separators, Separator))
		} else {
			out = append(out, NthArgf(line, selectColumns, separators, Separator))
		}
	}
	return out
}

// NthArg returns the selected columns of text, consecutive separators being
// treated as one and leading separators ignored.
func NthArg(text, selectColumns, separators, resultSeparator string) string {
	return nthArg(text, selectColumns, separators, resultSeparator, true)
}

// NthArgf returns the selected columns of text, every separator delimiting a
// column, empty or not.
func NthArgf(text, selectColumns, separators, resultSeparator string) string {
	return nthArg(text, selectColumns, separators, resultSeparator, false)
}

func nthArg(text, selectColumns, separators, resultSeparator string, collapse bool) string {
	if text == "" || selectColumns == "" || separators == "" {
		return ""
	}
	if resultSeparator == "" {
		resultSeparator = " "
	}

	isSep := func(r rune) bool { return strings.ContainsRune(separators, r) }

	var result []string
	for _, line := range strings.Split(text, NewLine) {
		var fields []string
		if collapse {
			fields = strings.FieldsFunc(line, isSep)
			// a trailing separator still delimits an empty last column
			if n := len(line); n > 0 && isSep(rune(line[n-1])) {
				fields = append(fields, "")
			}
		} else {
			fields = splitAny(line, separators)
		}

		for _, group := range strings.Split(selectColumns, ",") {
			from, to := columnRange(group, len(fields))
			if from <= 0 || from > to {
				continue
			}
			selected := make([]string, 0, to-from+1)
			for _, f := range fields[from-1 : to] {
				if collapse && strings.TrimSpace(f) == "" {
					continue
				}
				selected = append(selected, f)
			}
			result = append(result, strings.Join(selected, resultSeparator))
		}
	}
	return strings.Join(result, resultSeparator)
}

// splitAny splits s on every occurrence of any character of seps, keeping
// empty fields.
func splitAny(s, seps string) []string {
	var fields []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(seps, r) {
			fields = append(fields, s[start:i])
			start = i + len(string(r))
		}
	}
	return append(fields, s[start:])
}

// columnRange parses "n", "-n", "n-" or "m-n" into a 1-indexed inclusive
// range. An invalid or out-of-bounds range returns (0, 0).
func columnRange(group string, count int) (int, int) {
	var from, to int
	var err error

	dash := strings.Index(group, "-")
	switch {
	case dash == -1:
		from, err = strconv.Atoi(group)
		to = from
	case dash == 0:
		from = 1
		to, err = strconv.Atoi(group[1:])
	case dash == len(group)-1:
		from, err = strconv.Atoi(group[:dash])
		to = count
	default:
		from, err = strconv.Atoi(group[:dash])
		if err == nil {
			to, err = strconv.Atoi(group[dash+1:])
		}
		if to > count {
			to = count
		}
	}

	if err != nil || from > count || to > count {
		return 0, 0
	}
	return from, to
}

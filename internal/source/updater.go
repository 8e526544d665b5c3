package source

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

var (
	attributePattern = regexp.MustCompile(`(?i)\$\{attribute::(\w+)\}`)

	// legacyRefPattern matches %path% references written by older connectors.
	legacyRefPattern = regexp.MustCompile(`%([A-Za-z0-9_.()\-]+)%`)
)

// Updater rewrites a source with the current context before handing it to
// an Executor. Attribute placeholders, references to other sources and
// execute-for-each-entry directives are resolved here.
type Updater struct {
	logger      *zap.Logger
	executor    Executor
	tm          *telemetry.Manager
	connectorID string
	attributes  map[string]string

	// sleep waits between two entries. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewUpdater creates an updater for one connector on the host held by tm.
// attributes are the attributes of the monitor being processed, if any.
func NewUpdater(logger *zap.Logger, executor Executor, tm *telemetry.Manager, connectorID string, attributes map[string]string) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		logger: logger.Named("updater").With(
			zap.String("hostname", tm.Host.Hostname),
			zap.String("connector", connectorID),
		),
		executor:    executor,
		tm:          tm,
		connectorID: connectorID,
		attributes:  attributes,
		sleep:       sleepContext,
	}
}

// Process resolves src and executes it. The only error returned is the
// context error when the execute-for-each loop was interrupted; the table
// accumulated so far is returned with it.
func (u *Updater) Process(ctx context.Context, src connector.Source) (*sourcetable.Table, error) {
	if src == nil {
		return sourcetable.Empty(), nil
	}
	src = src.Copy()

	if h, ok := src.(*connector.HTTPSource); ok && h.AuthenticationToken != "" {
		h.AuthenticationToken = u.firstCell(h.Base().Key, h.AuthenticationToken)
	}

	if src.Base().ExecuteForEachEntryOf != nil {
		return u.processForEach(ctx, src)
	}
	return u.executor.Process(ctx, u.resolve(src), u.connectorID), nil
}

// resolve applies the attribute, source reference and unescape rewrites in
// that order.
func (u *Updater) resolve(src connector.Source) connector.Source {
	src = src.Update(func(s string) string { return ReplaceAttributes(s, u.attributes) })
	if !connector.IsTableOperation(src) {
		key := src.Base().Key
		src = src.Update(func(s string) string { return u.replaceSourceReferences(s, key) })
	}
	return src.Update(sourcetable.UnescapeDollars)
}

// ReplaceAttributes replaces ${attribute::name} placeholders with the value
// of the attribute. Unknown attributes are left untouched.
func ReplaceAttributes(text string, attributes map[string]string) string {
	if len(attributes) == 0 || !strings.Contains(text, "${") {
		return text
	}
	return attributePattern.ReplaceAllStringFunc(text, func(match string) string {
		name := attributePattern.FindStringSubmatch(match)[1]
		if v, ok := attributes[name]; ok {
			return v
		}
		if v, ok := attributes[strings.ToLower(name)]; ok {
			return v
		}
		return match
	})
}

// UsesAttributes reports whether src references the attributes of the
// monitor being processed.
func UsesAttributes(src connector.Source) bool {
	found := false
	src.Update(func(s string) string {
		if !found && attributePattern.MatchString(s) {
			found = true
		}
		return s
	})
	return found
}

func (u *Updater) replaceSourceReferences(text, key string) string {
	ns := u.tm.Namespace(u.connectorID)

	text = sourcetable.ReplaceReferences(text, func(path string) string {
		t, ok := ns.SourceTable(path)
		if !ok {
			u.logger.Error("Referenced source table not available, replacing it with an empty value",
				zap.String("reference", path),
				zap.String("source", key),
			)
			return ""
		}
		return ReferenceContent(t)
	})

	if !strings.Contains(text, "%") {
		return text
	}
	return legacyRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		t, ok := ns.SourceTable(legacyRefPattern.FindStringSubmatch(match)[1])
		if !ok {
			return match
		}
		return ReferenceContent(t)
	})
}

// ReferenceContent returns the text a source reference is replaced with: the
// rows as CSV, or the raw text when there are no rows. A trailing separator
// is removed from lines holding a single cell.
func ReferenceContent(t *sourcetable.Table) string {
	var content string
	switch {
	case len(t.Rows) > 0:
		content = sourcetable.ToCSV(t.Rows, sourcetable.Separator, false)
	case t.HasRaw():
		content = t.RawText()
	default:
		return ""
	}

	lines := strings.Split(content, sourcetable.NewLine)
	for i, line := range lines {
		if idx := strings.Index(line, sourcetable.Separator); idx >= 0 && idx == len(line)-1 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, sourcetable.NewLine)
}

// firstCell resolves a reference to the first cell of its table, or the
// first ;-separated field of its raw text.
func (u *Updater) firstCell(key, ref string) string {
	t, ok := sourcetable.Lookup(ref, u.tm.Namespace(u.connectorID))
	if !ok {
		u.logger.Error("Could not extract the authentication token", zap.String("reference", ref), zap.String("source", key))
		return ""
	}
	if len(t.Rows) > 0 && len(t.Rows[0]) > 0 {
		return t.Rows[0][0]
	}
	if t.HasRaw() {
		first, _, _ := strings.Cut(t.RawText(), sourcetable.Separator)
		return first
	}
	return ""
}

func (u *Updater) processForEach(ctx context.Context, src connector.Source) (*sourcetable.Table, error) {
	each := src.Base().ExecuteForEachEntryOf
	key := src.Base().Key

	driving, ok := sourcetable.Lookup(each.Source, u.tm.Namespace(u.connectorID))
	if !ok {
		u.logger.Error("Table driving the execute for each entry not found", zap.String("source", key), zap.String("entries", each.Source))
		return sourcetable.Empty(), nil
	}

	result := sourcetable.FromRaw("")
	concat := each.ConcatMethod
	delay := time.Duration(each.SleepMillis) * time.Millisecond

	var err error
	for i, row := range driving.Rows {
		if i > 0 && delay > 0 {
			if err = u.sleep(ctx, delay); err != nil {
				u.logger.Warn("Interrupted between two entries", zap.String("source", key), zap.Int("entry", i), zap.Error(err))
				break
			}
		}
		if err = ctx.Err(); err != nil {
			break
		}

		entry, ok := substituteRow(src, row)
		if !ok {
			u.logger.Warn("Entry placeholder out of range, skipping the entry", zap.String("source", key), zap.Int("entry", i))
			continue
		}
		concatEntry(result, concat, row, u.executor.Process(ctx, u.resolve(entry), u.connectorID))
	}

	if concat.Kind == connector.ConcatJSONArray || concat.Kind == connector.ConcatJSONArrayExtended {
		result.SetRaw("[" + result.RawText() + "]")
	}
	return result, err
}

// substituteRow replaces $n placeholders in every field of src with the
// cells of row.
func substituteRow(src connector.Source, row []string) (connector.Source, bool) {
	ok := true
	out := src.Update(func(s string) string {
		v, valid := sourcetable.ReplaceColumnReferences(s, row)
		if !valid {
			ok = false
			return s
		}
		return v
	})
	return out, ok
}

func concatEntry(result *sourcetable.Table, method connector.ConcatMethod, row []string, entry *sourcetable.Table) {
	if entry == nil {
		return
	}
	raw := entry.RawText()

	switch method.Kind {
	case connector.ConcatCustom:
		if !entry.HasRaw() {
			return
		}
		start, _ := sourcetable.ReplaceColumnReferences(method.Start, row)
		end, _ := sourcetable.ReplaceColumnReferences(method.End, row)
		result.SetRaw(result.RawText() + sourcetable.UnescapeDollars(start) + raw + sourcetable.UnescapeDollars(end))
	case connector.ConcatJSONArray:
		if strings.TrimSpace(raw) == "" {
			return
		}
		joinRaw(result, raw, ",\n")
	case connector.ConcatJSONArrayExtended:
		if extended := ExtendedJSON(row, raw); extended != "" {
			joinRaw(result, extended, ",\n")
		}
	default:
		if strings.TrimSpace(raw) != "" {
			joinRaw(result, raw, sourcetable.NewLine)
		}
		for _, r := range entry.Rows {
			if len(r) > 0 {
				result.Rows = append(result.Rows, append([]string(nil), r...))
			}
		}
	}
}

func joinRaw(result *sourcetable.Table, text, sep string) {
	current := result.RawText()
	if strings.TrimSpace(current) == "" {
		result.SetRaw(text)
		return
	}
	result.SetRaw(current + sep + text)
}

// ExtendedJSON wraps the JSON value of one entry with the cells of the row
// that produced it.
func ExtendedJSON(row []string, value string) string {
	full := strings.Join(row, ",")
	if full == "" || value == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("{\n\"Entry\":{\n\"Full\":\"")
	b.WriteString(full)
	b.WriteString("\",\n")
	for i, cell := range strings.Split(full, ",") {
		b.WriteString("\"Column(")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(")\":\"")
		b.WriteString(cell)
		b.WriteString("\",\n")
	}
	b.WriteString("\"Value\":")
	b.WriteString(value)
	b.WriteString("\n}\n}")
	return b.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package compute implements the table transformations applied to a source
// result. Every operation works on a copy of its input: a malformed compute
// or a table that does not fit the operation is logged and the input table is
// returned as is.
package compute

import (
	"context"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

var (
	// columnPattern matches a whole-value column reference such as "$3".
	columnPattern = regexp.MustCompile(`^\s*\$(\d+)\s*$`)

	filePattern = regexp.MustCompile(`\$\{file::(.*?)\}`)
)

// Env is the context a compute runs in.
type Env struct {
	// Connector resolves translation tables and embedded files.
	Connector *connector.Connector

	// SourceKey and Index identify the compute in logs.
	SourceKey string
	Index     int
}

// Interpreter applies computes to tables.
type Interpreter struct {
	logger *zap.Logger
	awk    ScriptRunner
}

// New creates an interpreter. A nil runner uses the embedded awk engine.
func New(logger *zap.Logger, runner ScriptRunner) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = GoAWK{}
	}
	return &Interpreter{logger: logger.Named("compute"), awk: runner}
}

// Apply runs one compute against table and returns the resulting table. The
// input table is never modified.
func (in *Interpreter) Apply(ctx context.Context, table *sourcetable.Table, c connector.Compute, env Env) *sourcetable.Table {
	if table == nil {
		table = sourcetable.Empty()
	}
	if c == nil {
		in.logger.Warn("Compute is nil, the table remains unchanged", zap.String("source", env.SourceKey))
		return table
	}

	log := in.logger.With(
		zap.String("source", env.SourceKey),
		zap.Int("compute", env.Index),
		zap.String("type", c.TypeName()),
	)

	t := table.Copy()
	var out *sourcetable.Table

	switch v := c.(type) {
	case *connector.Add:
		out = arithmetic(log, t, v.Column, v.Value, add)
	case *connector.Subtract:
		out = arithmetic(log, t, v.Column, v.Value, subtract)
	case *connector.Multiply:
		out = arithmetic(log, t, v.Column, v.Value, multiply)
	case *connector.Divide:
		out = arithmetic(log, t, v.Column, v.Value, divide)
	case *connector.And:
		out = bitwiseAnd(log, t, v)
	case *connector.Convert:
		out = convert(log, t, v)
	case *connector.Substring:
		out = substring(log, t, v)
	case *connector.Extract:
		out = extract(log, t, v)
	case *connector.ExtractPropertyFromWBEMPath:
		out = extractPropertyFromWBEMPath(log, t, v)
	case *connector.Translate:
		out = translate(log, t, v, env)
	case *connector.ArrayTranslate:
		out = arrayTranslate(log, t, v, env)
	case *connector.PerBitTranslation:
		out = perBitTranslation(log, t, v, env)
	case *connector.KeepColumns:
		out = keepColumns(log, t, v)
	case *connector.KeepOnlyMatchingLines:
		out = matchingLines(log, t, v.Column, v.RegExp, v.ValueList, true)
	case *connector.ExcludeMatchingLines:
		out = matchingLines(log, t, v.Column, v.RegExp, v.ValueList, false)
	case *connector.LeftConcat:
		out = concat(log, t, v.Column, v.Value, true)
	case *connector.RightConcat:
		out = concat(log, t, v.Column, v.Value, false)
	case *connector.DuplicateColumn:
		out = duplicateColumn(log, t, v)
	case *connector.Replace:
		out = replace(log, t, v)
	case *connector.Awk:
		out = in.runAwk(ctx, log, t, v, env)
	case *connector.JSON2CSV:
		out = json2CSV(log, t, v)
	case *connector.XML2CSV:
		out = xml2CSV(log, t, v)
	default:
		log.Warn("Unsupported compute, the table remains unchanged")
	}

	if out == nil {
		return table
	}
	return out
}

// ApplyAll runs computes in order, each on the result of the previous one.
func (in *Interpreter) ApplyAll(ctx context.Context, table *sourcetable.Table, computes connector.ComputeList, env Env) *sourcetable.Table {
	for i, c := range computes {
		if ctx.Err() != nil {
			in.logger.Warn("Computes interrupted", zap.String("source", env.SourceKey), zap.Error(ctx.Err()))
			return table
		}
		env.Index = i
		table = in.Apply(ctx, table, c, env)
	}
	return table
}

// finish regenerates the raw text of t from its rows.
func finish(t *sourcetable.Table) *sourcetable.Table {
	t.RefreshRaw()
	return t
}

// resplit re-parses the rows so that cells holding a separator become
// separate columns.
func resplit(t *sourcetable.Table) {
	t.Rows = sourcetable.FromCSV(sourcetable.ToCSV(t.Rows, sourcetable.Separator, false), sourcetable.Separator)
}

// columnIndex returns the 0-based index referenced by a "$n" value, or -1.
func columnIndex(value string) int {
	m := columnPattern.FindStringSubmatch(value)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n - 1
}

// inRange reports whether every index is a valid index of row.
func inRange(row []string, indices ...int) bool {
	for _, i := range indices {
		if i < 0 || i >= len(row) {
			return false
		}
	}
	return true
}

// lookupTranslations resolves an inline or referenced translation table.
func lookupTranslations(inline connector.TranslationTable, ref string, env Env) (connector.TranslationTable, bool) {
	if len(inline) > 0 {
		return inline, true
	}
	if ref == "" {
		return nil, false
	}
	return env.Connector.Translation(ref)
}

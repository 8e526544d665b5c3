// Package source executes source definitions. The Processor runs one source,
// either as a built-in table operation or through the protocol extension
// that supports it. The Updater rewrites a source before execution and owns
// the execute-for-each-entry loop.
package source

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// Executor runs a fully resolved source.
type Executor interface {
	Process(ctx context.Context, src connector.Source, connectorID string) *sourcetable.Table
}

// Processor executes sources for one host. It never fails: malformed sources,
// missing references and protocol errors are logged and produce the empty
// table.
type Processor struct {
	logger     *zap.Logger
	extensions *extension.Registry
	tm         *telemetry.Manager
}

// NewProcessor creates a processor for the host held by tm.
func NewProcessor(logger *zap.Logger, extensions *extension.Registry, tm *telemetry.Manager) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		logger:     logger.Named("source").With(zap.String("hostname", tm.Host.Hostname)),
		extensions: extensions,
		tm:         tm,
	}
}

// Process executes src and returns its table.
func (p *Processor) Process(ctx context.Context, src connector.Source, connectorID string) *sourcetable.Table {
	if src == nil {
		p.logger.Error("Source is nil, returning an empty table", zap.String("connector", connectorID))
		return sourcetable.Empty()
	}

	log := p.logger.With(
		zap.String("connector", connectorID),
		zap.String("source", src.Base().Key),
		zap.String("type", src.TypeName()),
	)
	ns := p.tm.Namespace(connectorID)

	switch s := src.(type) {
	case *connector.CopySource:
		return copyTable(log, s, ns)
	case *connector.StaticSource:
		return staticTable(log, s, ns)
	case *connector.TableJoinSource:
		return joinTables(log, s, ns)
	case *connector.TableUnionSource:
		return unionTables(log, s, ns)
	}

	if p.extensions == nil {
		log.Debug("No extension registry, returning an empty table")
		return sourcetable.Empty()
	}
	ext, ok := p.extensions.FindSourceExtension(src, p.tm.Host)
	if !ok {
		log.Debug("No protocol extension supports the source, returning an empty table")
		return sourcetable.Empty()
	}

	var (
		table *sourcetable.Table
		err   error
	)
	run := func() { table, err = ext.ProcessSource(ctx, src, connectorID, p.tm) }
	if src.Base().ForceSerialization {
		ns.Serialize(run)
	} else {
		run()
	}

	if err != nil {
		log.Error("Source execution failed, returning an empty table", zap.String("extension", ext.Name()), zap.Error(err))
		return sourcetable.Empty()
	}
	if table == nil {
		return sourcetable.Empty()
	}
	log.Debug("Source executed", zap.String("extension", ext.Name()), zap.Int("rows", len(table.Rows)))
	return table
}

// nonEmptyRows deep-copies rows, dropping empty ones.
func nonEmptyRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, append([]string(nil), row...))
	}
	return out
}

func copyTable(log *zap.Logger, s *connector.CopySource, ns sourcetable.Namespace) *sourcetable.Table {
	if s.From == "" {
		log.Error("Copy source has no reference, returning an empty table")
		return sourcetable.Empty()
	}
	origin, ok := sourcetable.Lookup(s.From, ns)
	if !ok {
		log.Debug("Copied table not found, returning an empty table", zap.String("from", s.From))
		return sourcetable.Empty()
	}

	t := &sourcetable.Table{Rows: nonEmptyRows(origin.Rows)}
	if origin.HasRaw() {
		t.SetRaw(origin.RawText())
	}
	log.Debug("Copied table", zap.String("from", s.From), zap.Int("rows", len(t.Rows)))
	return t
}

func staticTable(log *zap.Logger, s *connector.StaticSource, ns sourcetable.Namespace) *sourcetable.Table {
	if s.Value == "" {
		log.Error("Static source has no value, returning an empty table")
		return sourcetable.Empty()
	}
	origin, ok := sourcetable.Lookup(s.Value, ns)
	if !ok {
		log.Debug("Static value not found, returning an empty table", zap.String("value", s.Value))
		return sourcetable.Empty()
	}

	t := &sourcetable.Table{Rows: nonEmptyRows(origin.Rows)}
	t.RefreshRaw()
	return t
}

func joinTables(log *zap.Logger, s *connector.TableJoinSource, ns sourcetable.Namespace) *sourcetable.Table {
	if s.LeftTable == "" || s.RightTable == "" {
		log.Debug("Join is missing a table, returning an empty table")
		return sourcetable.Empty()
	}
	left, ok := sourcetable.Lookup(s.LeftTable, ns)
	if !ok {
		log.Debug("Left table not found, returning an empty table", zap.String("leftTable", s.LeftTable))
		return sourcetable.Empty()
	}
	right, ok := sourcetable.Lookup(s.RightTable, ns)
	if !ok {
		log.Debug("Right table not found, returning an empty table", zap.String("rightTable", s.RightTable))
		return sourcetable.Empty()
	}
	if s.LeftKeyColumn < 1 || s.RightKeyColumn < 1 {
		log.Error("Invalid key column number, returning an empty table",
			zap.Int("leftKeyColumn", s.LeftKeyColumn),
			zap.Int("rightKeyColumn", s.RightKeyColumn),
		)
		return sourcetable.Empty()
	}

	rows := sourcetable.Join(left.Rows, right.Rows, sourcetable.JoinOptions{
		LeftKey:          s.LeftKeyColumn,
		RightKey:         s.RightKeyColumn,
		DefaultRightLine: s.DefaultRightLine,
		WBEMKeys:         s.IsWBEMKey(),
		CaseSensitive:    s.IsCaseSensitive,
	})
	t := &sourcetable.Table{Rows: rows}
	t.RefreshRaw()
	return t
}

func unionTables(log *zap.Logger, s *connector.TableUnionSource, ns sourcetable.Namespace) *sourcetable.Table {
	if len(s.Tables) == 0 {
		log.Debug("Union has no table, returning an empty table")
		return sourcetable.Empty()
	}

	t := sourcetable.Empty()
	var raws []string
	for _, key := range s.Tables {
		part, ok := sourcetable.Lookup(key, ns)
		if !ok {
			log.Debug("Union table not found, skipping it", zap.String("table", key))
			continue
		}
		t.Rows = append(t.Rows, nonEmptyRows(part.Rows)...)
		if part.HasRaw() {
			raws = append(raws, part.RawText())
		}
	}
	t.SetRaw(strings.ReplaceAll(strings.Join(raws, sourcetable.NewLine), "\n\n", sourcetable.NewLine))
	return t
}

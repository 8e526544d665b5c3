package compute

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/benhoyt/goawk/interp"
	"github.com/benhoyt/goawk/parser"
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// ScriptRunner executes an awk script over input and returns its output.
type ScriptRunner interface {
	Run(ctx context.Context, script, input string) (string, error)
}

// GoAWK runs scripts with the embedded awk interpreter. Scripts cannot spawn
// commands or write files.
type GoAWK struct{}

// Run implements ScriptRunner.
func (GoAWK) Run(ctx context.Context, script, input string) (string, error) {
	prog, err := parser.ParseProgram([]byte(script), nil)
	if err != nil {
		return "", fmt.Errorf("parsing awk script: %w", err)
	}
	p, err := interp.New(prog)
	if err != nil {
		return "", fmt.Errorf("preparing awk script: %w", err)
	}

	var out bytes.Buffer
	_, err = p.ExecuteContext(ctx, &interp.Config{
		Stdin:        strings.NewReader(input),
		Output:       &out,
		Error:        &bytes.Buffer{},
		NoExec:       true,
		NoFileWrites: true,
	})
	if err != nil {
		return "", fmt.Errorf("running awk script: %w", err)
	}
	return out.String(), nil
}

// ResolveScript replaces a ${file::name} reference with the embedded file of
// conn. It reports false when the file is missing.
func ResolveScript(script string, conn *connector.Connector) (string, bool) {
	m := filePattern.FindStringSubmatch(script)
	if m == nil {
		return script, true
	}
	if conn == nil {
		return "", false
	}
	content, ok := conn.EmbeddedFiles[m[1]]
	return content, ok
}

func (in *Interpreter) runAwk(ctx context.Context, log *zap.Logger, t *sourcetable.Table, c *connector.Awk, env Env) *sourcetable.Table {
	if c.Script == "" {
		log.Warn("Empty awk script, the table remains unchanged")
		return nil
	}
	script, ok := ResolveScript(c.Script, env.Connector)
	if !ok {
		log.Warn("Embedded awk script not found, the table remains unchanged", zap.String("script", c.Script))
		return nil
	}

	input := t.RawText()
	if input == "" {
		input = sourcetable.ToCSV(t.Rows, sourcetable.Separator, true)
	}

	result, err := in.awk.Run(ctx, script, input)
	if err != nil {
		log.Warn("Awk script failed, the table remains unchanged", zap.Error(err))
		return nil
	}
	if strings.TrimSpace(result) == "" {
		log.Debug("Awk script returned nothing")
		t.Rows = [][]string{}
		t.SetRaw("")
		return t
	}

	lines := strings.Split(strings.TrimRight(result, "\r\n"), sourcetable.NewLine)
	lines, err = sourcetable.FilterLines(lines, 0, 0, c.Exclude, c.Keep)
	if err != nil {
		log.Warn("Invalid awk line filter, the table remains unchanged", zap.Error(err))
		return nil
	}
	lines = sourcetable.SelectColumns(lines, c.Separators, c.SelectColumns)

	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if !strings.HasSuffix(line, sourcetable.Separator) {
			line += sourcetable.Separator
		}
		lines[i] = line
	}
	raw := strings.Join(lines, sourcetable.NewLine)
	t.Rows = sourcetable.FromCSV(raw, sourcetable.Separator)
	t.SetRaw(raw)
	return t
}

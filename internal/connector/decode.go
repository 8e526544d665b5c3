package connector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

var sourceTypes = typeIndex(
	func() Source { return &CopySource{} },
	func() Source { return &StaticSource{} },
	func() Source { return &TableJoinSource{} },
	func() Source { return &TableUnionSource{} },
	func() Source { return &HTTPSource{} },
	func() Source { return &SNMPGetSource{} },
	func() Source { return &SNMPTableSource{} },
	func() Source { return &WBEMSource{} },
	func() Source { return &WMISource{} },
	func() Source { return &IPMISource{} },
	func() Source { return &CommandLineSource{} },
	func() Source { return &SQLSource{} },
	func() Source { return &JawkSource{} },
)

var computeTypes = typeIndex(
	func() Compute { return &Add{} },
	func() Compute { return &Subtract{} },
	func() Compute { return &Multiply{} },
	func() Compute { return &Divide{} },
	func() Compute { return &And{} },
	func() Compute { return &Awk{} },
	func() Compute { return &Convert{} },
	func() Compute { return &Substring{} },
	func() Compute { return &Extract{} },
	func() Compute { return &ExtractPropertyFromWBEMPath{} },
	func() Compute { return &Translate{} },
	func() Compute { return &ArrayTranslate{} },
	func() Compute { return &PerBitTranslation{} },
	func() Compute { return &KeepColumns{} },
	func() Compute { return &KeepOnlyMatchingLines{} },
	func() Compute { return &ExcludeMatchingLines{} },
	func() Compute { return &LeftConcat{} },
	func() Compute { return &RightConcat{} },
	func() Compute { return &DuplicateColumn{} },
	func() Compute { return &Replace{} },
	func() Compute { return &JSON2CSV{} },
	func() Compute { return &XML2CSV{} },
)

var criterionTypes = typeIndex(
	func() Criterion { return &DeviceTypeCriterion{} },
	func() Criterion { return &ProductRequirementsCriterion{} },
	func() Criterion { return &ProcessCriterion{} },
	func() Criterion { return &ServiceCriterion{} },
	func() Criterion { return &CommandLineCriterion{} },
	func() Criterion { return &HTTPCriterion{} },
	func() Criterion { return &SNMPGetCriterion{} },
	func() Criterion { return &SNMPGetNextCriterion{} },
	func() Criterion { return &WBEMCriterion{} },
	func() Criterion { return &WMICriterion{} },
	func() Criterion { return &IPMICriterion{} },
	func() Criterion { return &SQLCriterion{} },
)

// Aliases accepted in connector files for the concat variants.
var computeAliases = map[string]string{
	"prepend": "leftconcat",
	"append":  "rightconcat",
}

func typeIndex[T interface{ TypeName() string }](ctors ...func() T) map[string]func() T {
	index := make(map[string]func() T, len(ctors))
	for _, ctor := range ctors {
		index[strings.ToLower(ctor().TypeName())] = ctor
	}
	return index
}

// decodeVariant reads the "type" key of node and decodes node into the
// matching variant.
func decodeVariant[T any](node *yaml.Node, index map[string]func() T, aliases map[string]string, what string) (T, error) {
	var zero T
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		return zero, fmt.Errorf("line %d: decoding %s: %w", node.Line, what, err)
	}

	name := strings.ToLower(head.Type)
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	ctor, ok := index[name]
	if !ok {
		return zero, fmt.Errorf("line %d: unknown %s type %q", node.Line, what, head.Type)
	}

	v := ctor()
	if err := node.Decode(v); err != nil {
		return zero, fmt.Errorf("line %d: decoding %s %q: %w", node.Line, what, head.Type, err)
	}
	return v, nil
}

// UnmarshalYAML decodes a sequence of typed computes.
func (l *ComputeList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: computes must be a sequence", value.Line)
	}
	out := make(ComputeList, 0, len(value.Content))
	for _, item := range value.Content {
		c, err := decodeVariant(item, computeTypes, computeAliases, "compute")
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// UnmarshalYAML decodes a sequence of typed criteria.
func (l *CriterionList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: criteria must be a sequence", value.Line)
	}
	out := make(CriterionList, 0, len(value.Content))
	for _, item := range value.Content {
		c, err := decodeVariant(item, criterionTypes, nil, "criterion")
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// UnmarshalYAML accepts either a strategy name ("list", "jsonArray",
// "jsonArrayExtended") or a mapping with concatStart/concatEnd templates.
func (m *ConcatMethod) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		switch strings.ToLower(value.Value) {
		case "", "list":
			m.Kind = ConcatList
		case "jsonarray":
			m.Kind = ConcatJSONArray
		case "jsonarrayextended":
			m.Kind = ConcatJSONArrayExtended
		default:
			return fmt.Errorf("line %d: unknown concat method %q", value.Line, value.Value)
		}
		return nil
	case yaml.MappingNode:
		var custom struct {
			Start string `yaml:"concatStart"`
			End   string `yaml:"concatEnd"`
		}
		if err := value.Decode(&custom); err != nil {
			return err
		}
		*m = ConcatMethod{Kind: ConcatCustom, Start: custom.Start, End: custom.End}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported concat method format", value.Line)
	}
}

type connectorFile struct {
	Connector `yaml:",inline"`
	Monitors  yaml.Node `yaml:"monitors"`
}

// Decode parses a connector description. The id is normally the file name
// without extension.
func Decode(id string, data []byte) (*Connector, error) {
	var file connectorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing connector %s: %w", id, err)
	}

	c := file.Connector
	c.ID = id
	if c.DisplayName == "" {
		c.DisplayName = id
	}
	c.Translations = lowerTranslationTables(c.Translations)

	if file.Monitors.Kind == yaml.MappingNode {
		jobs, err := decodeMonitors(&file.Monitors)
		if err != nil {
			return nil, fmt.Errorf("parsing connector %s: %w", id, err)
		}
		c.Jobs = jobs
	}

	return &c, nil
}

func decodeMonitors(node *yaml.Node) ([]*Job, error) {
	var jobs []*Job
	for i := 0; i+1 < len(node.Content); i += 2 {
		monitor := node.Content[i].Value
		jobsNode := node.Content[i+1]
		if jobsNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: monitor %s must be a mapping", jobsNode.Line, monitor)
		}
		for j := 0; j+1 < len(jobsNode.Content); j += 2 {
			job, err := decodeJob(monitor, jobsNode.Content[j].Value, jobsNode.Content[j+1])
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].Monitor != jobs[b].Monitor {
			return jobs[a].Monitor < jobs[b].Monitor
		}
		return jobs[a].Name < jobs[b].Name
	})
	return jobs, nil
}

func decodeJob(monitor, name string, node *yaml.Node) (*Job, error) {
	job := &Job{Monitor: monitor, Name: name, Sources: make(map[string]Source)}
	if err := node.Decode(job); err != nil {
		return nil, fmt.Errorf("line %d: decoding job %s.%s: %w", node.Line, monitor, name, err)
	}

	var aux struct {
		Sources yaml.Node `yaml:"sources"`
	}
	if err := node.Decode(&aux); err != nil {
		return nil, err
	}

	for i := 0; i+1 < len(aux.Sources.Content); i += 2 {
		srcName := aux.Sources.Content[i].Value
		src, err := decodeVariant(aux.Sources.Content[i+1], sourceTypes, nil, "source")
		if err != nil {
			return nil, fmt.Errorf("job %s.%s source %s: %w", monitor, name, srcName, err)
		}
		src = src.Update(job.absoluteReferences)
		if src.Base().Key == "" {
			src.Base().Key = job.SourceKey(srcName)
		}
		if e := src.Base().ExecuteForEachEntryOf; e != nil {
			e.Source = job.absoluteReferences(e.Source)
		}
		for _, c := range src.Base().Computes {
			lowerComputeTranslations(c)
		}
		job.Sources[srcName] = src
		job.SourceOrder = append(job.SourceOrder, srcName)
	}

	if job.Mapping != nil {
		job.Mapping.Source = job.absoluteReferences(job.Mapping.Source)
	}
	return job, nil
}

// absoluteReferences turns ${source::name} references to a sibling source
// into fully qualified namespace keys.
func (j *Job) absoluteReferences(text string) string {
	return sourcetable.ReplaceReferences(text, func(path string) string {
		if !strings.Contains(path, ".") {
			path = j.SourceKey(path)
		}
		return "${source::" + path + "}"
	})
}

func lowerComputeTranslations(c Compute) {
	switch v := c.(type) {
	case *Translate:
		v.Translations = lowerTranslationKeys(v.Translations)
	case *ArrayTranslate:
		v.Translations = lowerTranslationKeys(v.Translations)
	case *PerBitTranslation:
		v.Translations = lowerTranslationKeys(v.Translations)
	}
}

func lowerTranslationKeys(t TranslationTable) TranslationTable {
	if t == nil {
		return nil
	}
	out := make(TranslationTable, len(t))
	for k, v := range t {
		out[strings.ToLower(k)] = v
	}
	return out
}

func lowerTranslationTables(tables map[string]TranslationTable) map[string]TranslationTable {
	if tables == nil {
		return nil
	}
	out := make(map[string]TranslationTable, len(tables))
	for name, t := range tables {
		out[name] = lowerTranslationKeys(t)
	}
	return out
}

// LoadFile reads and decodes one connector file.
func LoadFile(path string) (*Connector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connector file: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Decode(id, data)
}

// LoadDir decodes every .yaml/.yml file of dir, sorted by name. Files that
// fail to decode are skipped and their errors combined in the returned error.
func LoadDir(dir string) ([]*Connector, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading connector directory: %w", err)
	}

	var (
		connectors []*Connector
		errs       error
	)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		c, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		connectors = append(connectors, c)
	}

	sort.Slice(connectors, func(i, j int) bool { return connectors[i].ID < connectors[j].ID })
	return connectors, errs
}

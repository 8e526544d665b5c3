package compute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

func json2CSV(log *zap.Logger, t *sourcetable.Table, c *connector.JSON2CSV) *sourcetable.Table {
	if c.Properties == "" {
		log.Warn("No properties to extract, the table remains unchanged")
		return nil
	}
	sep := c.Separator
	if sep == "" {
		sep = sourcetable.Separator
	}

	result, err := JSONToCSV(t.RawText(), c.EntryKey, strings.Split(c.Properties, ";"), sep)
	if err != nil {
		log.Warn("Cannot convert JSON, the table remains unchanged", zap.Error(err))
		return nil
	}
	if result == "" {
		log.Debug("JSON conversion returned nothing, the table remains unchanged")
		return nil
	}
	t.Rows = sourcetable.FromCSV(result, sep)
	t.SetRaw(result)
	return t
}

// JSONToCSV flattens document into one line per entry found at entryKey.
// entryKey is a "/" separated path; arrays met on the way are expanded. Each
// line starts with the entry path followed by the value of every property,
// itself a "/" separated path relative to the entry. Comments and trailing
// commas are tolerated.
func JSONToCSV(document, entryKey string, properties []string, sep string) (string, error) {
	if strings.TrimSpace(document) == "" {
		return "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON([]byte(document))))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return "", fmt.Errorf("decoding JSON: %w", err)
	}

	var b strings.Builder
	for _, e := range jsonEntries(root, "", splitPath(entryKey)) {
		b.WriteString(e.path)
		b.WriteString(sep)
		for _, p := range properties {
			b.WriteString(jsonText(jsonLookup(e.value, splitPath(p))))
			b.WriteString(sep)
		}
		b.WriteString(sourcetable.NewLine)
	}
	return strings.TrimSuffix(b.String(), sourcetable.NewLine), nil
}

type jsonEntry struct {
	path  string
	value any
}

func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonEntries(node any, path string, keys []string) []jsonEntry {
	if arr, ok := node.([]any); ok {
		var out []jsonEntry
		for i, v := range arr {
			out = append(out, jsonEntries(v, path+"["+strconv.Itoa(i)+"]", keys)...)
		}
		return out
	}
	if len(keys) == 0 {
		if path == "" {
			path = "/"
		}
		return []jsonEntry{{path: path, value: node}}
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	child, ok := obj[keys[0]]
	if !ok {
		return nil
	}
	return jsonEntries(child, path+"/"+keys[0], keys[1:])
}

func jsonLookup(node any, keys []string) any {
	for _, k := range keys {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		if node, ok = obj[k]; !ok {
			return nil
		}
	}
	return node
}

func jsonText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

package compute

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

func xml2CSV(log *zap.Logger, t *sourcetable.Table, c *connector.XML2CSV) *sourcetable.Table {
	if c.RecordTag == "" || c.Properties == "" {
		log.Warn("Missing record tag or properties, the table remains unchanged")
		return nil
	}

	rows, err := XMLToRows(t.RawText(), c.RecordTag, strings.Split(c.Properties, ";"))
	if err != nil {
		log.Warn("Cannot convert XML, the table remains unchanged", zap.Error(err))
		return nil
	}
	if len(rows) == 0 {
		log.Debug("XML conversion returned nothing, the table remains unchanged")
		return nil
	}
	t.Rows = rows
	return finish(t)
}

type xmlNode struct {
	name     string
	attrs    map[string]string
	text     strings.Builder
	children []*xmlNode
}

func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// XMLToRows returns one row per element found at recordTag, a "/" separated
// path from the document root. Each property is a path relative to the
// record; a final "@name" segment selects an attribute.
func XMLToRows(document, recordTag string, properties []string) ([][]string, error) {
	root, err := parseXML(document)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	path := splitPath(recordTag)
	if len(path) == 0 || path[0] != root.name {
		return nil, nil
	}
	records := []*xmlNode{root}
	for _, name := range path[1:] {
		var next []*xmlNode
		for _, r := range records {
			for _, c := range r.children {
				if c.name == name {
					next = append(next, c)
				}
			}
		}
		records = next
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, 0, len(properties))
		for _, p := range properties {
			row = append(row, xmlValue(r, splitPath(strings.TrimSpace(p))))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func xmlValue(n *xmlNode, path []string) string {
	for i, seg := range path {
		if strings.HasPrefix(seg, "@") && i == len(path)-1 {
			return n.attrs[seg[1:]]
		}
		if n = n.child(seg); n == nil {
			return ""
		}
	}
	return strings.TrimSpace(n.text.String())
}

func parseXML(document string) (*xmlNode, error) {
	if strings.TrimSpace(document) == "" {
		return nil, nil
	}

	dec := xml.NewDecoder(strings.NewReader(document))
	var root *xmlNode
	var stack []*xmlNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding XML: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: el.Name.Local, attrs: make(map[string]string, len(el.Attr))}
			for _, a := range el.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(el)
			}
		}
	}
	return root, nil
}

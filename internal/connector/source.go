package connector

import "strings"

// Source is a declarative instruction producing a table from a host, either
// through a built-in table operation or a protocol extension.
//
// Source is a closed set: only the types in this package implement it.
type Source interface {
	// Base returns the fields shared by every source variant.
	Base() *SourceBase

	// Copy returns a deep copy of the source.
	Copy() Source

	// Update returns a copy of the source whose textual fields have all been
	// rewritten by fn. The receiver is left untouched.
	Update(fn func(string) string) Source

	// TypeName is the variant name as written in connector files.
	TypeName() string

	isSource()
}

// ConcatKind selects how execute-for-each results are accumulated.
type ConcatKind string

const (
	ConcatList              ConcatKind = "list"
	ConcatJSONArray         ConcatKind = "jsonArray"
	ConcatJSONArrayExtended ConcatKind = "jsonArrayExtended"
	ConcatCustom            ConcatKind = "custom"
)

// ConcatMethod is a concatenation strategy. Start and End are only used by
// ConcatCustom.
type ConcatMethod struct {
	Kind  ConcatKind
	Start string
	End   string
}

// ExecuteForEachEntryOf runs the source once per row of another source.
type ExecuteForEachEntryOf struct {
	Source       string       `yaml:"source"`
	ConcatMethod ConcatMethod `yaml:"concatMethod"`
	SleepMillis  int64        `yaml:"sleepExecutionMillis"`
}

// SourceBase holds the fields common to all sources.
type SourceBase struct {
	// Key is the namespace key the result is stored under.
	Key string `yaml:"key"`

	Computes              ComputeList            `yaml:"computes"`
	ForceSerialization    bool                   `yaml:"forceSerialization"`
	ExecuteForEachEntryOf *ExecuteForEachEntryOf `yaml:"executeForEachEntryOf"`
}

// Base returns the shared fields.
func (b *SourceBase) Base() *SourceBase { return b }

func (b SourceBase) copyBase() SourceBase {
	c := b
	c.Computes = b.Computes.Copy()
	if b.ExecuteForEachEntryOf != nil {
		e := *b.ExecuteForEachEntryOf
		c.ExecuteForEachEntryOf = &e
	}
	return c
}

// CopySource duplicates the table of another source.
type CopySource struct {
	SourceBase `yaml:",inline"`
	From       string `yaml:"from"`
}

// StaticSource produces a literal table, or the table of a referenced source.
type StaticSource struct {
	SourceBase `yaml:",inline"`
	Value      string `yaml:"value"`
}

// TableJoinSource joins two source tables on a key column each.
type TableJoinSource struct {
	SourceBase       `yaml:",inline"`
	LeftTable        string `yaml:"leftTable"`
	RightTable       string `yaml:"rightTable"`
	LeftKeyColumn    int    `yaml:"leftKeyColumn"`
	RightKeyColumn   int    `yaml:"rightKeyColumn"`
	DefaultRightLine string `yaml:"defaultRightLine"`
	KeyType          string `yaml:"keyType"`
	IsCaseSensitive  bool   `yaml:"isCaseSensitive"`
}

// IsWBEMKey reports whether keys are WBEM object paths.
func (s *TableJoinSource) IsWBEMKey() bool {
	return strings.EqualFold(s.KeyType, "wbem")
}

// TableUnionSource concatenates the rows of several source tables.
type TableUnionSource struct {
	SourceBase `yaml:",inline"`
	Tables     []string `yaml:"tables"`
}

// HTTPSource performs an HTTP request.
type HTTPSource struct {
	SourceBase          `yaml:",inline"`
	Method              string `yaml:"method"`
	URL                 string `yaml:"url"`
	Path                string `yaml:"path"`
	Header              string `yaml:"header"`
	Body                string `yaml:"body"`
	AuthenticationToken string `yaml:"authenticationToken"`
	ResultContent       string `yaml:"resultContent"`
}

// SNMPGetSource reads a single OID.
type SNMPGetSource struct {
	SourceBase `yaml:",inline"`
	OID        string `yaml:"oid"`
}

// SNMPTableSource walks an SNMP table.
type SNMPTableSource struct {
	SourceBase    `yaml:",inline"`
	OID           string `yaml:"oid"`
	SelectColumns string `yaml:"selectColumns"`
}

// WBEMSource runs a WQL query over WBEM.
type WBEMSource struct {
	SourceBase `yaml:",inline"`
	Query      string `yaml:"query"`
	Namespace  string `yaml:"namespace"`
}

// WMISource runs a WQL query over WMI.
type WMISource struct {
	SourceBase `yaml:",inline"`
	Query      string `yaml:"query"`
	Namespace  string `yaml:"namespace"`
}

// IPMISource reads the IPMI sensors and FRUs of the host.
type IPMISource struct {
	SourceBase `yaml:",inline"`
}

// CommandLineSource runs an OS command and parses its output.
type CommandLineSource struct {
	SourceBase        `yaml:",inline"`
	CommandLine       string `yaml:"commandLine"`
	Timeout           int64  `yaml:"timeout"`
	ExecuteLocally    bool   `yaml:"executeLocally"`
	Exclude           string `yaml:"exclude"`
	Keep              string `yaml:"keep"`
	BeginAtLineNumber int    `yaml:"beginAtLineNumber"`
	EndAtLineNumber   int    `yaml:"endAtLineNumber"`
	Separators        string `yaml:"separators"`
	SelectColumns     string `yaml:"selectColumns"`
}

// SQLSource runs a SQL query.
type SQLSource struct {
	SourceBase `yaml:",inline"`
	Query      string `yaml:"query"`
}

// JawkSource runs an awk script over an input text.
type JawkSource struct {
	SourceBase `yaml:",inline"`
	Script     string `yaml:"script"`
	Input      string `yaml:"input"`
}

func (*CopySource) isSource()        {}
func (*StaticSource) isSource()      {}
func (*TableJoinSource) isSource()   {}
func (*TableUnionSource) isSource()  {}
func (*HTTPSource) isSource()        {}
func (*SNMPGetSource) isSource()     {}
func (*SNMPTableSource) isSource()   {}
func (*WBEMSource) isSource()        {}
func (*WMISource) isSource()         {}
func (*IPMISource) isSource()        {}
func (*CommandLineSource) isSource() {}
func (*SQLSource) isSource()         {}
func (*JawkSource) isSource()        {}

func (*CopySource) TypeName() string        { return "copy" }
func (*StaticSource) TypeName() string      { return "static" }
func (*TableJoinSource) TypeName() string   { return "tableJoin" }
func (*TableUnionSource) TypeName() string  { return "tableUnion" }
func (*HTTPSource) TypeName() string        { return "http" }
func (*SNMPGetSource) TypeName() string     { return "snmpGet" }
func (*SNMPTableSource) TypeName() string   { return "snmpTable" }
func (*WBEMSource) TypeName() string        { return "wbem" }
func (*WMISource) TypeName() string         { return "wmi" }
func (*IPMISource) TypeName() string        { return "ipmi" }
func (*CommandLineSource) TypeName() string { return "commandLine" }
func (*SQLSource) TypeName() string         { return "sql" }
func (*JawkSource) TypeName() string        { return "jawk" }

func (s *CopySource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *CopySource) Update(fn func(string) string) Source {
	c := s.Copy().(*CopySource)
	c.From = fn(c.From)
	return c
}

func (s *StaticSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *StaticSource) Update(fn func(string) string) Source {
	c := s.Copy().(*StaticSource)
	c.Value = fn(c.Value)
	return c
}

func (s *TableJoinSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *TableJoinSource) Update(fn func(string) string) Source {
	c := s.Copy().(*TableJoinSource)
	c.LeftTable = fn(c.LeftTable)
	c.RightTable = fn(c.RightTable)
	c.DefaultRightLine = fn(c.DefaultRightLine)
	return c
}

func (s *TableUnionSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	c.Tables = append([]string(nil), s.Tables...)
	return &c
}

func (s *TableUnionSource) Update(fn func(string) string) Source {
	c := s.Copy().(*TableUnionSource)
	for i := range c.Tables {
		c.Tables[i] = fn(c.Tables[i])
	}
	return c
}

func (s *HTTPSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *HTTPSource) Update(fn func(string) string) Source {
	c := s.Copy().(*HTTPSource)
	c.Method = fn(c.Method)
	c.URL = fn(c.URL)
	c.Path = fn(c.Path)
	c.Header = fn(c.Header)
	c.Body = fn(c.Body)
	c.AuthenticationToken = fn(c.AuthenticationToken)
	return c
}

func (s *SNMPGetSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *SNMPGetSource) Update(fn func(string) string) Source {
	c := s.Copy().(*SNMPGetSource)
	c.OID = fn(c.OID)
	return c
}

func (s *SNMPTableSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *SNMPTableSource) Update(fn func(string) string) Source {
	c := s.Copy().(*SNMPTableSource)
	c.OID = fn(c.OID)
	c.SelectColumns = fn(c.SelectColumns)
	return c
}

func (s *WBEMSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *WBEMSource) Update(fn func(string) string) Source {
	c := s.Copy().(*WBEMSource)
	c.Query = fn(c.Query)
	c.Namespace = fn(c.Namespace)
	return c
}

func (s *WMISource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *WMISource) Update(fn func(string) string) Source {
	c := s.Copy().(*WMISource)
	c.Query = fn(c.Query)
	c.Namespace = fn(c.Namespace)
	return c
}

func (s *IPMISource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *IPMISource) Update(func(string) string) Source {
	return s.Copy()
}

func (s *CommandLineSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *CommandLineSource) Update(fn func(string) string) Source {
	c := s.Copy().(*CommandLineSource)
	c.CommandLine = fn(c.CommandLine)
	c.Exclude = fn(c.Exclude)
	c.Keep = fn(c.Keep)
	c.Separators = fn(c.Separators)
	c.SelectColumns = fn(c.SelectColumns)
	return c
}

func (s *SQLSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *SQLSource) Update(fn func(string) string) Source {
	c := s.Copy().(*SQLSource)
	c.Query = fn(c.Query)
	return c
}

func (s *JawkSource) Copy() Source {
	c := *s
	c.SourceBase = s.copyBase()
	return &c
}

func (s *JawkSource) Update(fn func(string) string) Source {
	c := s.Copy().(*JawkSource)
	c.Script = fn(c.Script)
	c.Input = fn(c.Input)
	return c
}

// IsTableOperation reports whether src is one of the built-in table
// operations whose reference fields must reach the processor unresolved.
func IsTableOperation(src Source) bool {
	switch src.(type) {
	case *CopySource, *StaticSource, *TableUnionSource, *TableJoinSource:
		return true
	default:
		return false
	}
}

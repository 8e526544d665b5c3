package connector

// Compute is a declarative table transformation applied after a source
// executes. Column numbers are 1-indexed.
//
// Compute is a closed set: only the types in this package implement it.
type Compute interface {
	// Copy returns a deep copy of the compute.
	Copy() Compute

	// Update returns a copy whose textual operands were rewritten by fn.
	Update(fn func(string) string) Compute

	// TypeName is the variant name as written in connector files.
	TypeName() string

	isCompute()
}

// ComputeList is an ordered list of computes.
type ComputeList []Compute

// Copy returns a deep copy of the list.
func (l ComputeList) Copy() ComputeList {
	if l == nil {
		return nil
	}
	out := make(ComputeList, len(l))
	for i, c := range l {
		out[i] = c.Copy()
	}
	return out
}

// ConversionType selects the Convert operation.
type ConversionType string

const (
	ConvertHex2Dec            ConversionType = "hex2Dec"
	ConvertArray2SimpleStatus ConversionType = "array2SimpleStatus"
)

// Add adds Value to the column. Value is a number or a $n column reference.
type Add struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// Subtract subtracts Value from the column.
type Subtract struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// Multiply multiplies the column by Value.
type Multiply struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// Divide divides the column by Value. Division by zero leaves the cell as is.
type Divide struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// And applies a bitwise AND between the column and Value.
type And struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// Awk runs a script over the table and re-parses its output.
type Awk struct {
	Script        string `yaml:"script"`
	Exclude       string `yaml:"exclude"`
	Keep          string `yaml:"keep"`
	Separators    string `yaml:"separators"`
	SelectColumns string `yaml:"selectColumns"`
}

// Convert converts the column with the given conversion.
type Convert struct {
	Column         int            `yaml:"column"`
	ConversionType ConversionType `yaml:"conversion"`
}

// Substring keeps Length characters of the column starting at Start
// (1-indexed). Both may be $n column references.
type Substring struct {
	Column int    `yaml:"column"`
	Start  string `yaml:"start"`
	Length string `yaml:"length"`
}

// Extract replaces the column with its SubColumn-th field, fields being
// separated by any of the SubSeparators characters.
type Extract struct {
	Column        int    `yaml:"column"`
	SubColumn     int    `yaml:"subColumn"`
	SubSeparators string `yaml:"subSeparators"`
}

// ExtractPropertyFromWBEMPath replaces a WBEM object path with the value of
// one of its key properties.
type ExtractPropertyFromWBEMPath struct {
	Column       int    `yaml:"column"`
	PropertyName string `yaml:"property"`
}

// Translate replaces the column with its translation.
type Translate struct {
	Column           int              `yaml:"column"`
	TranslationTable string           `yaml:"translationTable"`
	Translations     TranslationTable `yaml:"translations"`
}

// ArrayTranslate translates each element of an array held in the column.
type ArrayTranslate struct {
	Column           int              `yaml:"column"`
	TranslationTable string           `yaml:"translationTable"`
	Translations     TranslationTable `yaml:"translations"`
	ArraySeparator   string           `yaml:"arraySeparator"`
	ResultSeparator  string           `yaml:"resultSeparator"`
}

// PerBitTranslation translates the state of selected bits of an integer.
type PerBitTranslation struct {
	Column           int              `yaml:"column"`
	BitList          string           `yaml:"bitList"`
	TranslationTable string           `yaml:"translationTable"`
	Translations     TranslationTable `yaml:"bitTranslations"`
}

// KeepColumns keeps the listed columns, comma separated.
type KeepColumns struct {
	ColumnNumbers string `yaml:"columnNumbers"`
}

// KeepOnlyMatchingLines keeps rows whose column matches RegExp and ValueList.
type KeepOnlyMatchingLines struct {
	Column    int    `yaml:"column"`
	RegExp    string `yaml:"regExp"`
	ValueList string `yaml:"valueList"`
}

// ExcludeMatchingLines drops rows whose column matches RegExp or ValueList.
type ExcludeMatchingLines struct {
	Column    int    `yaml:"column"`
	RegExp    string `yaml:"regExp"`
	ValueList string `yaml:"valueList"`
}

// LeftConcat prepends Value to the column.
type LeftConcat struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// RightConcat appends Value to the column.
type RightConcat struct {
	Column int    `yaml:"column"`
	Value  string `yaml:"value"`
}

// DuplicateColumn inserts a copy of the column right after it.
type DuplicateColumn struct {
	Column int `yaml:"column"`
}

// Replace replaces ExistingValue with NewValue in the column.
type Replace struct {
	Column        int    `yaml:"column"`
	ExistingValue string `yaml:"existingValue"`
	NewValue      string `yaml:"newValue"`
}

// JSON2CSV flattens a JSON document into rows.
type JSON2CSV struct {
	EntryKey   string `yaml:"entryKey"`
	Properties string `yaml:"properties"`
	Separator  string `yaml:"separator"`
}

// XML2CSV flattens an XML document into rows.
type XML2CSV struct {
	RecordTag  string `yaml:"recordTag"`
	Properties string `yaml:"properties"`
}

func (*Add) isCompute()                         {}
func (*Subtract) isCompute()                    {}
func (*Multiply) isCompute()                    {}
func (*Divide) isCompute()                      {}
func (*And) isCompute()                         {}
func (*Awk) isCompute()                         {}
func (*Convert) isCompute()                     {}
func (*Substring) isCompute()                   {}
func (*Extract) isCompute()                     {}
func (*ExtractPropertyFromWBEMPath) isCompute() {}
func (*Translate) isCompute()                   {}
func (*ArrayTranslate) isCompute()              {}
func (*PerBitTranslation) isCompute()           {}
func (*KeepColumns) isCompute()                 {}
func (*KeepOnlyMatchingLines) isCompute()       {}
func (*ExcludeMatchingLines) isCompute()        {}
func (*LeftConcat) isCompute()                  {}
func (*RightConcat) isCompute()                 {}
func (*DuplicateColumn) isCompute()             {}
func (*Replace) isCompute()                     {}
func (*JSON2CSV) isCompute()                    {}
func (*XML2CSV) isCompute()                     {}

func (*Add) TypeName() string                         { return "add" }
func (*Subtract) TypeName() string                    { return "subtract" }
func (*Multiply) TypeName() string                    { return "multiply" }
func (*Divide) TypeName() string                      { return "divide" }
func (*And) TypeName() string                         { return "and" }
func (*Awk) TypeName() string                         { return "awk" }
func (*Convert) TypeName() string                     { return "convert" }
func (*Substring) TypeName() string                   { return "substring" }
func (*Extract) TypeName() string                     { return "extract" }
func (*ExtractPropertyFromWBEMPath) TypeName() string { return "extractPropertyFromWbemPath" }
func (*Translate) TypeName() string                   { return "translate" }
func (*ArrayTranslate) TypeName() string              { return "arrayTranslate" }
func (*PerBitTranslation) TypeName() string           { return "perBitTranslation" }
func (*KeepColumns) TypeName() string                 { return "keepColumns" }
func (*KeepOnlyMatchingLines) TypeName() string       { return "keepOnlyMatchingLines" }
func (*ExcludeMatchingLines) TypeName() string        { return "excludeMatchingLines" }
func (*LeftConcat) TypeName() string                  { return "leftConcat" }
func (*RightConcat) TypeName() string                 { return "rightConcat" }
func (*DuplicateColumn) TypeName() string             { return "duplicateColumn" }
func (*Replace) TypeName() string                     { return "replace" }
func (*JSON2CSV) TypeName() string                    { return "json2Csv" }
func (*XML2CSV) TypeName() string                     { return "xml2Csv" }

func (c *Add) Copy() Compute                         { v := *c; return &v }
func (c *Subtract) Copy() Compute                    { v := *c; return &v }
func (c *Multiply) Copy() Compute                    { v := *c; return &v }
func (c *Divide) Copy() Compute                      { v := *c; return &v }
func (c *And) Copy() Compute                         { v := *c; return &v }
func (c *Awk) Copy() Compute                         { v := *c; return &v }
func (c *Convert) Copy() Compute                     { v := *c; return &v }
func (c *Substring) Copy() Compute                   { v := *c; return &v }
func (c *Extract) Copy() Compute                     { v := *c; return &v }
func (c *ExtractPropertyFromWBEMPath) Copy() Compute { v := *c; return &v }

func (c *Translate) Copy() Compute {
	v := *c
	v.Translations = c.Translations.copy()
	return &v
}

func (c *ArrayTranslate) Copy() Compute {
	v := *c
	v.Translations = c.Translations.copy()
	return &v
}

func (c *PerBitTranslation) Copy() Compute {
	v := *c
	v.Translations = c.Translations.copy()
	return &v
}

func (c *KeepColumns) Copy() Compute           { v := *c; return &v }
func (c *KeepOnlyMatchingLines) Copy() Compute { v := *c; return &v }
func (c *ExcludeMatchingLines) Copy() Compute  { v := *c; return &v }
func (c *LeftConcat) Copy() Compute            { v := *c; return &v }
func (c *RightConcat) Copy() Compute           { v := *c; return &v }
func (c *DuplicateColumn) Copy() Compute       { v := *c; return &v }
func (c *Replace) Copy() Compute               { v := *c; return &v }
func (c *JSON2CSV) Copy() Compute              { v := *c; return &v }
func (c *XML2CSV) Copy() Compute               { v := *c; return &v }

func (c *Add) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *Subtract) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *Multiply) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *Divide) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *And) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *Awk) Update(fn func(string) string) Compute {
	v := *c
	v.Script = fn(v.Script)
	v.Exclude = fn(v.Exclude)
	v.Keep = fn(v.Keep)
	return &v
}

func (c *Convert) Update(func(string) string) Compute { return c.Copy() }

func (c *Substring) Update(fn func(string) string) Compute {
	v := *c
	v.Start = fn(v.Start)
	v.Length = fn(v.Length)
	return &v
}

func (c *Extract) Update(func(string) string) Compute { return c.Copy() }

func (c *ExtractPropertyFromWBEMPath) Update(fn func(string) string) Compute {
	v := *c
	v.PropertyName = fn(v.PropertyName)
	return &v
}

func (c *Translate) Update(func(string) string) Compute         { return c.Copy() }
func (c *ArrayTranslate) Update(func(string) string) Compute    { return c.Copy() }
func (c *PerBitTranslation) Update(func(string) string) Compute { return c.Copy() }
func (c *KeepColumns) Update(func(string) string) Compute       { return c.Copy() }

func (c *KeepOnlyMatchingLines) Update(fn func(string) string) Compute {
	v := *c
	v.RegExp = fn(v.RegExp)
	v.ValueList = fn(v.ValueList)
	return &v
}

func (c *ExcludeMatchingLines) Update(fn func(string) string) Compute {
	v := *c
	v.RegExp = fn(v.RegExp)
	v.ValueList = fn(v.ValueList)
	return &v
}

func (c *LeftConcat) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *RightConcat) Update(fn func(string) string) Compute {
	v := *c
	v.Value = fn(v.Value)
	return &v
}

func (c *DuplicateColumn) Update(func(string) string) Compute { return c.Copy() }

func (c *Replace) Update(fn func(string) string) Compute {
	v := *c
	v.ExistingValue = fn(v.ExistingValue)
	v.NewValue = fn(v.NewValue)
	return &v
}

func (c *JSON2CSV) Update(fn func(string) string) Compute {
	v := *c
	v.EntryKey = fn(v.EntryKey)
	v.Properties = fn(v.Properties)
	return &v
}

func (c *XML2CSV) Update(fn func(string) string) Compute {
	v := *c
	v.RecordTag = fn(v.RecordTag)
	v.Properties = fn(v.Properties)
	return &v
}

func (t TranslationTable) copy() TranslationTable {
	if t == nil {
		return nil
	}
	out := make(TranslationTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

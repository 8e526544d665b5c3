package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

func apply(t *testing.T, rows [][]string, c connector.Compute) [][]string {
	t.Helper()
	in := New(nil, nil)
	out := in.Apply(context.Background(), sourcetable.FromRows(rows), c, Env{})
	return out.Rows
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	in := New(nil, nil)
	table := sourcetable.FromRows([][]string{{"1", "2"}})
	out := in.Apply(context.Background(), table, &connector.Add{Column: 1, Value: "10"}, Env{})

	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
	assert.Equal(t, [][]string{{"11", "2"}}, out.Rows)
	assert.Equal(t, "11;2;", out.RawText())
}

func TestArithmetic(t *testing.T) {
	rows := [][]string{{"10", "4"}, {"", "2"}, {"abc", "1"}, {"6"}}

	tests := []struct {
		name    string
		compute connector.Compute
		want    [][]string
	}{
		{
			name:    "add number",
			compute: &connector.Add{Column: 1, Value: "5"},
			want:    [][]string{{"15", "4"}, {"", "2"}, {"abc", "1"}, {"11"}},
		},
		{
			name:    "subtract column",
			compute: &connector.Subtract{Column: 1, Value: "$2"},
			want:    [][]string{{"6", "4"}, {"", "2"}, {"abc", "1"}, {"6"}},
		},
		{
			name:    "multiply negative",
			compute: &connector.Multiply{Column: 1, Value: "-2"},
			want:    [][]string{{"-20", "4"}, {"", "2"}, {"abc", "1"}, {"-12"}},
		},
		{
			name:    "divide",
			compute: &connector.Divide{Column: 1, Value: "$2"},
			want:    [][]string{{"2.5", "4"}, {"", "2"}, {"abc", "1"}, {"6"}},
		},
		{
			name:    "divide by zero",
			compute: &connector.Divide{Column: 1, Value: "0"},
			want:    rows,
		},
		{
			name:    "invalid operand",
			compute: &connector.Add{Column: 1, Value: "ten"},
			want:    rows,
		},
		{
			name:    "column zero",
			compute: &connector.Add{Column: 0, Value: "1"},
			want:    rows,
		},
		{
			name:    "and",
			compute: &connector.And{Column: 1, Value: "6"},
			want:    [][]string{{"2", "4"}, {"", "2"}, {"abc", "1"}, {"6"}},
		},
		{
			name:    "signed literal",
			compute: &connector.Add{Column: 1, Value: "+1"},
			want:    [][]string{{"11", "4"}, {"", "2"}, {"abc", "1"}, {"7"}},
		},
		{
			name:    "leading dot literal",
			compute: &connector.Multiply{Column: 1, Value: ".5"},
			want:    [][]string{{"5", "4"}, {"", "2"}, {"abc", "1"}, {"3"}},
		},
		{
			name:    "exponent literal",
			compute: &connector.Add{Column: 1, Value: "1e3"},
			want:    [][]string{{"1010", "4"}, {"", "2"}, {"abc", "1"}, {"1006"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apply(t, rows, tt.compute)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.compute.TypeName(), diff)
			}
		})
	}
}

func TestAndKeepsLargeIntegers(t *testing.T) {
	got := apply(t, [][]string{{"9007199254740993"}, {"1.5"}}, &connector.And{Column: 1, Value: "9223372036854775807"})
	want := [][]string{{"9007199254740993"}, {"1.5"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("And mismatch (-want +got):\n%s", diff)
	}
}

func TestWorstStatus(t *testing.T) {
	tests := []struct {
		values []string
		want   string
	}{
		{[]string{"OK", "WARN"}, "WARN"},
		{[]string{"OK", "ALARM", "WARN"}, "ALARM"},
		{[]string{}, "UNKNOWN"},
		{[]string{"ok"}, "OK"},
		{[]string{"garbage"}, "UNKNOWN"},
		{[]string{"OK", "degraded"}, "WARN"},
	}

	for _, tt := range tests {
		if got := WorstStatus(tt.values); got != tt.want {
			t.Errorf("WorstStatus(%q) = %q, want %q", tt.values, got, tt.want)
		}
	}
}

func TestConvert(t *testing.T) {
	got := apply(t, [][]string{{"0x1F"}, {"0A:0B"}, {"zz"}}, &connector.Convert{Column: 1, ConversionType: connector.ConvertHex2Dec})
	assert.Equal(t, [][]string{{"31"}, {"2571"}, {"zz"}}, got)

	got = apply(t, [][]string{{"OK|WARN|OK"}, {"OK\nALARM"}, {""}}, &connector.Convert{Column: 1, ConversionType: connector.ConvertArray2SimpleStatus})
	assert.Equal(t, [][]string{{"WARN"}, {"ALARM"}, {"UNKNOWN"}}, got)
}

func TestSubstring(t *testing.T) {
	tests := []struct {
		name   string
		rows   [][]string
		start  string
		length string
		want   [][]string
	}{
		{"prefix", [][]string{{"abcdef"}}, "1", "3", [][]string{{"abc"}}},
		{"middle", [][]string{{"abcdef"}}, "2", "3", [][]string{{"bcd"}}},
		{"out of bounds", [][]string{{"abcd"}}, "5", "3", [][]string{{"abcd"}}},
		{"start zero", [][]string{{"abcd"}}, "0", "2", [][]string{{"abcd"}}},
		{"column reference", [][]string{{"abcdef", "3"}}, "$2", "2", [][]string{{"cd", "3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apply(t, tt.rows, &connector.Substring{Column: 1, Start: tt.start, Length: tt.length})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract(t *testing.T) {
	got := apply(t, [][]string{{"a/b/c", "x"}}, &connector.Extract{Column: 1, SubColumn: 2, SubSeparators: "/"})
	assert.Equal(t, [][]string{{"b", "x"}}, got)

	rows := [][]string{{"a/b"}, {}}
	got = apply(t, rows, &connector.Extract{Column: 1, SubColumn: 2, SubSeparators: "/"})
	assert.Equal(t, rows, got, "a short row aborts the whole operation")
}

func TestExtractPropertyFromWBEMPath(t *testing.T) {
	rows := [][]string{{`root/cimv2:CIM_Disk.CreationClassName="CIM_Disk",DeviceID="disk0"`}}
	got := apply(t, rows, &connector.ExtractPropertyFromWBEMPath{Column: 1, PropertyName: "deviceid"})
	assert.Equal(t, [][]string{{"disk0"}}, got)
}

func TestTranslate(t *testing.T) {
	conn := &connector.Connector{
		Translations: map[string]connector.TranslationTable{
			"status": {"1": "OK", "2": "ALARM;extra", "default": "UNKNOWN"},
		},
	}
	in := New(nil, nil)
	out := in.Apply(context.Background(),
		sourcetable.FromRows([][]string{{"1", "a"}, {"2", "b"}, {"9", "c"}}),
		&connector.Translate{Column: 1, TranslationTable: "status"},
		Env{Connector: conn},
	)
	assert.Equal(t, [][]string{{"OK", "a"}, {"ALARM", "extra", "b"}, {"UNKNOWN", "c"}}, out.Rows)

	got := apply(t, [][]string{{"X"}}, &connector.Translate{Column: 1, Translations: connector.TranslationTable{"y": "Y"}})
	assert.Equal(t, [][]string{{"X"}}, got, "no translation and no default")
}

func TestArrayTranslate(t *testing.T) {
	c := &connector.ArrayTranslate{
		Column:          1,
		Translations:    connector.TranslationTable{"1": "OK", "2": "Degraded", "3": ""},
		ResultSeparator: ",",
	}
	got := apply(t, [][]string{{"1|2|3|"}}, c)
	assert.Equal(t, [][]string{{"OK,Degraded"}}, got)
}

func TestPerBitTranslation(t *testing.T) {
	c := &connector.PerBitTranslation{
		Column:  1,
		BitList: "0,1,2",
		Translations: connector.TranslationTable{
			"0,1": "Power on",
			"1,1": "Fan failure",
			"2,0": "",
			"2,1": "Overheat",
		},
	}
	got := apply(t, [][]string{{"3"}, {"4"}}, c)
	assert.Equal(t, [][]string{{"Power on - Fan failure"}, {"Overheat"}}, got)

	rows := [][]string{{"1"}, {"abc"}}
	assert.Equal(t, rows, apply(t, rows, c), "non-numeric cell aborts")
}

func TestKeepColumns(t *testing.T) {
	got := apply(t, [][]string{{"a", "b", "c"}, {"d", "e", "f"}}, &connector.KeepColumns{ColumnNumbers: "3, 1"})
	assert.Equal(t, [][]string{{"a", "c"}, {"d", "f"}}, got)

	rows := [][]string{{"a", "b", "c"}, {"d"}}
	assert.Equal(t, rows, apply(t, rows, &connector.KeepColumns{ColumnNumbers: "1,3"}))
}

func TestMatchingLines(t *testing.T) {
	rows := [][]string{{"disk0", "OK"}, {"disk1", "Failed"}, {"cdrom", "ok"}}

	got := apply(t, rows, &connector.KeepOnlyMatchingLines{Column: 1, RegExp: "^disk"})
	assert.Equal(t, [][]string{{"disk0", "OK"}, {"disk1", "Failed"}}, got)

	got = apply(t, rows, &connector.KeepOnlyMatchingLines{Column: 2, ValueList: "ok"})
	assert.Equal(t, [][]string{{"disk0", "OK"}, {"cdrom", "ok"}}, got)

	got = apply(t, rows, &connector.KeepOnlyMatchingLines{Column: 1, RegExp: "^disk", ValueList: "DISK1"})
	assert.Equal(t, [][]string{{"disk1", "Failed"}}, got)

	got = apply(t, rows, &connector.ExcludeMatchingLines{Column: 1, RegExp: "cdrom", ValueList: "disk1"})
	assert.Equal(t, [][]string{{"disk0", "OK"}}, got)

	assert.Equal(t, rows, apply(t, rows, &connector.ExcludeMatchingLines{Column: 3, RegExp: "x"}))
}

func TestConcat(t *testing.T) {
	rows := [][]string{{"a", "b"}, {"c", "d"}}

	tests := []struct {
		name    string
		compute connector.Compute
		want    [][]string
	}{
		{"left value", &connector.LeftConcat{Column: 1, Value: "x-"}, [][]string{{"x-a", "b"}, {"x-c", "d"}}},
		{"right column", &connector.RightConcat{Column: 1, Value: "$2"}, [][]string{{"ab", "b"}, {"cd", "d"}}},
		{"embedded reference", &connector.RightConcat{Column: 2, Value: "($1)"}, [][]string{{"a", "b(a)"}, {"c", "d(c)"}}},
		{"new column", &connector.RightConcat{Column: 3, Value: "z"}, [][]string{{"a", "b", "z"}, {"c", "d", "z"}}},
		{"split", &connector.RightConcat{Column: 1, Value: ";new"}, [][]string{{"a", "new", "b"}, {"c", "new", "d"}}},
		{"beyond width", &connector.LeftConcat{Column: 5, Value: "z"}, rows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apply(t, rows, tt.compute))
		})
	}
}

func TestDuplicateAndReplace(t *testing.T) {
	got := apply(t, [][]string{{"a", "b"}}, &connector.DuplicateColumn{Column: 1})
	assert.Equal(t, [][]string{{"a", "a", "b"}}, got)

	got = apply(t, [][]string{{"1.2.3", "-"}}, &connector.Replace{Column: 1, ExistingValue: ".", NewValue: "$2"})
	assert.Equal(t, [][]string{{"1-2-3", "-"}}, got)

	got = apply(t, [][]string{{"a,b", "c"}}, &connector.Replace{Column: 1, ExistingValue: ",", NewValue: ";"})
	assert.Equal(t, [][]string{{"a", "b", "c"}}, got)
}

type fakeAwk struct {
	output string
	err    error
	input  string
	script string
}

func (f *fakeAwk) Run(_ context.Context, script, input string) (string, error) {
	f.script, f.input = script, input
	return f.output, f.err
}

func TestAwk(t *testing.T) {
	runner := &fakeAwk{output: "MSHW;1;OK\nMSHW;2;FAILED\nOTHER;3;OK\n"}
	in := New(nil, runner)
	conn := &connector.Connector{EmbeddedFiles: map[string]string{"script.awk": "{ print }"}}

	table := sourcetable.FromRows([][]string{{"x", "y"}})
	out := in.Apply(context.Background(), table,
		&connector.Awk{Script: "${file::script.awk}", Keep: "^MSHW", Separators: ";", SelectColumns: "2,3"},
		Env{Connector: conn},
	)

	assert.Equal(t, "{ print }", runner.script)
	assert.Equal(t, "x;y;", runner.input)
	assert.Equal(t, [][]string{{"1", "OK"}, {"2", "FAILED"}}, out.Rows)
	assert.Equal(t, "1;OK;\n2;FAILED;", out.RawText())

	runner.err = errors.New("boom")
	out = in.Apply(context.Background(), table, &connector.Awk{Script: "{ print }"}, Env{})
	assert.Same(t, table, out)

	runner.err, runner.output = nil, ""
	out = in.Apply(context.Background(), table, &connector.Awk{Script: "{ print }"}, Env{})
	assert.Empty(t, out.Rows)

	out = in.Apply(context.Background(), table, &connector.Awk{Script: "${file::missing}"}, Env{Connector: conn})
	assert.Same(t, table, out)
}

func TestGoAWK(t *testing.T) {
	out, err := GoAWK{}.Run(context.Background(), `BEGIN { FS = ";" } { print $2 ";" $1 }`, "a;b;\nc;d;\n")
	require.NoError(t, err)
	assert.Equal(t, "b;a\nd;c\n", out)

	_, err = GoAWK{}.Run(context.Background(), `{ print `, "")
	assert.Error(t, err)
}

func TestJSON2CSV(t *testing.T) {
	doc := `{
		// inventory
		"disks": [
			{"name": "sda", "health": {"status": "OK"}, "size": 100},
			{"name": "sdb", "health": {"status": "FAILED"}, "size": 200,},
		]
	}`
	in := New(nil, nil)
	out := in.Apply(context.Background(), sourcetable.FromRaw(doc),
		&connector.JSON2CSV{EntryKey: "/disks", Properties: "name;health/status;missing"},
		Env{},
	)

	assert.Equal(t, [][]string{
		{"/disks[0]", "sda", "OK", ""},
		{"/disks[1]", "sdb", "FAILED", ""},
	}, out.Rows)

	out = in.Apply(context.Background(), sourcetable.FromRaw("not json"), &connector.JSON2CSV{Properties: "a"}, Env{})
	assert.Equal(t, "not json", out.RawText())
}

func TestXML2CSV(t *testing.T) {
	doc := `<?xml version="1.0"?>
<inventory>
  <disk id="0"><name>sda</name><status>OK</status></disk>
  <disk id="1"><name>sdb</name></disk>
  <fan id="2"/>
</inventory>`

	rows, err := XMLToRows(doc, "/inventory/disk", []string{"@id", "name", "status"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0", "sda", "OK"}, {"1", "sdb", ""}}, rows)

	in := New(nil, nil)
	out := in.Apply(context.Background(), sourcetable.FromRaw(doc), &connector.XML2CSV{RecordTag: "/inventory/fan", Properties: "@id"}, Env{})
	assert.Equal(t, [][]string{{"2"}}, out.Rows)
	assert.Equal(t, "2;", out.RawText())

	_, err = XMLToRows("<a><b></a>", "/a", []string{"b"})
	assert.Error(t, err)
}

func TestApplyAll(t *testing.T) {
	in := New(nil, nil)
	out := in.ApplyAll(context.Background(), sourcetable.FromRows([][]string{{"2"}}), connector.ComputeList{
		&connector.Multiply{Column: 1, Value: "3"},
		&connector.Add{Column: 1, Value: "1"},
		&connector.RightConcat{Column: 1, Value: " units"},
	}, Env{SourceKey: "source1"})
	assert.Equal(t, [][]string{{"7 units"}}, out.Rows)
}

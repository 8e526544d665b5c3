package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// recordingExecutor returns one scripted result per call and records the
// sources it received.
type recordingExecutor struct {
	results []*sourcetable.Table
	calls   []connector.Source
}

func (r *recordingExecutor) Process(_ context.Context, src connector.Source, _ string) *sourcetable.Table {
	r.calls = append(r.calls, src)
	if len(r.results) == 0 {
		return sourcetable.Empty()
	}
	t := r.results[0]
	r.results = r.results[1:]
	return t
}

func TestReplaceAttributes(t *testing.T) {
	attrs := map[string]string{"id": "disk0", "name": "Disk"}

	tests := []struct {
		in   string
		want string
	}{
		{"/disk/${attribute::id}", "/disk/disk0"},
		{"${ATTRIBUTE::id}-${attribute::name}", "disk0-Disk"},
		{"${attribute::missing}", "${attribute::missing}"},
		{"no placeholder", "no placeholder"},
	}

	for _, tt := range tests {
		if got := ReplaceAttributes(tt.in, attrs); got != tt.want {
			t.Errorf("ReplaceAttributes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUsesAttributes(t *testing.T) {
	assert.True(t, UsesAttributes(&connector.HTTPSource{URL: "/disks/${attribute::id}/status"}))
	assert.True(t, UsesAttributes(&connector.StaticSource{Value: "${ATTRIBUTE::name}"}))
	assert.False(t, UsesAttributes(&connector.HTTPSource{URL: "/disks/${source::monitors.disk.discovery.sources.ids}"}))
}

func TestReferenceContent(t *testing.T) {
	assert.Equal(t, "a\nb;c;", ReferenceContent(sourcetable.FromRows([][]string{{"a"}, {"b", "c"}})))
	assert.Equal(t, "token", ReferenceContent(sourcetable.FromRaw("token;")))
	assert.Equal(t, "", ReferenceContent(sourcetable.Empty()))
}

func TestUpdaterResolvesReferences(t *testing.T) {
	tm := newManager()
	store(tm, "monitors.disk.discovery.sources.ids", sourcetable.FromRows([][]string{{"42"}}))
	exec := &recordingExecutor{}
	u := NewUpdater(nil, exec, tm, connectorID, map[string]string{"id": "disk0"})

	src := &connector.HTTPSource{
		URL:    "/disk/${attribute::id}/${source::monitors.disk.discovery.sources.ids}",
		Header: "Cost: $$5",
		Body:   "%monitors.disk.discovery.sources.ids% %unknown%",
	}
	_, err := u.Process(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	got := exec.calls[0].(*connector.HTTPSource)
	assert.Equal(t, "/disk/disk0/42", got.URL)
	assert.Equal(t, "Cost: $5", got.Header)
	assert.Equal(t, "42 %unknown%", got.Body)
	assert.Equal(t, "/disk/${attribute::id}/${source::monitors.disk.discovery.sources.ids}", src.URL, "the definition is not modified")
}

func TestUpdaterKeepsTableOperationReferences(t *testing.T) {
	tm := newManager()
	store(tm, "a", sourcetable.FromRows([][]string{{"x"}}))
	exec := &recordingExecutor{}
	u := NewUpdater(nil, exec, tm, connectorID, nil)

	_, err := u.Process(context.Background(), &connector.CopySource{From: "${source::a}"})
	require.NoError(t, err)
	assert.Equal(t, "${source::a}", exec.calls[0].(*connector.CopySource).From)
}

func TestUpdaterAuthenticationToken(t *testing.T) {
	tm := newManager()
	store(tm, "token", sourcetable.FromRaw("secret;other"))
	exec := &recordingExecutor{}
	u := NewUpdater(nil, exec, tm, connectorID, nil)

	_, err := u.Process(context.Background(), &connector.HTTPSource{AuthenticationToken: "${source::token}"})
	require.NoError(t, err)
	assert.Equal(t, "secret", exec.calls[0].(*connector.HTTPSource).AuthenticationToken)
}

func forEach(concat connector.ConcatMethod) *connector.HTTPSource {
	return &connector.HTTPSource{
		SourceBase: connector.SourceBase{
			Key: "monitors.disk.collect.sources.status",
			ExecuteForEachEntryOf: &connector.ExecuteForEachEntryOf{
				Source:       "${source::entries}",
				ConcatMethod: concat,
			},
		},
		URL: "/disk/$1",
	}
}

func TestExecuteForEachEntry(t *testing.T) {
	entries := sourcetable.FromRows([][]string{{"d0", "A"}, {"d1", "B"}})

	tests := []struct {
		name     string
		concat   connector.ConcatMethod
		results  []*sourcetable.Table
		wantRaw  string
		wantRows [][]string
	}{
		{
			name:    "json array",
			concat:  connector.ConcatMethod{Kind: connector.ConcatJSONArray},
			results: []*sourcetable.Table{sourcetable.FromRaw(`{"a":1}`), sourcetable.FromRaw(`{"a":2}`)},
			wantRaw: "[{\"a\":1},\n{\"a\":2}]",
		},
		{
			name:    "json array skips blank entries",
			concat:  connector.ConcatMethod{Kind: connector.ConcatJSONArray},
			results: []*sourcetable.Table{sourcetable.FromRaw(" "), sourcetable.FromRaw(`{"a":2}`)},
			wantRaw: `[{"a":2}]`,
		},
		{
			name:   "list",
			concat: connector.ConcatMethod{Kind: connector.ConcatList},
			results: []*sourcetable.Table{
				{Rows: [][]string{{"r1"}}, Raw: ptr("line1")},
				{Rows: [][]string{{"r2"}}, Raw: ptr("line2")},
			},
			wantRaw:  "line1\nline2",
			wantRows: [][]string{{"r1"}, {"r2"}},
		},
		{
			name:    "custom",
			concat:  connector.ConcatMethod{Kind: connector.ConcatCustom, Start: "<$2>", End: "</$2>"},
			results: []*sourcetable.Table{sourcetable.FromRaw("x"), sourcetable.FromRaw("y")},
			wantRaw: "<A>x</A><B>y</B>",
		},
		{
			name:    "json array extended",
			concat:  connector.ConcatMethod{Kind: connector.ConcatJSONArrayExtended},
			results: []*sourcetable.Table{sourcetable.FromRaw(`1`), sourcetable.FromRaw(`2`)},
			wantRaw: "[" + ExtendedJSON([]string{"d0", "A"}, "1") + ",\n" + ExtendedJSON([]string{"d1", "B"}, "2") + "]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newManager()
			store(tm, "entries", entries)
			exec := &recordingExecutor{results: tt.results}
			u := NewUpdater(nil, exec, tm, connectorID, nil)

			got, err := u.Process(context.Background(), forEach(tt.concat))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRaw, got.RawText())
			if tt.wantRows != nil {
				assert.Equal(t, tt.wantRows, got.Rows)
			}

			require.Len(t, exec.calls, 2)
			assert.Equal(t, "/disk/d0", exec.calls[0].(*connector.HTTPSource).URL)
			assert.Equal(t, "/disk/d1", exec.calls[1].(*connector.HTTPSource).URL)
		})
	}
}

func TestExtendedJSON(t *testing.T) {
	want := "{\n\"Entry\":{\n\"Full\":\"d0,A\",\n\"Column(1)\":\"d0\",\n\"Column(2)\":\"A\",\n\"Value\":{\"x\":1}\n}\n}"
	assert.Equal(t, want, ExtendedJSON([]string{"d0", "A"}, `{"x":1}`))
	assert.Equal(t, "", ExtendedJSON([]string{"d0"}, ""))
}

func TestExecuteForEachEntrySkipsBadPlaceholder(t *testing.T) {
	tm := newManager()
	store(tm, "entries", sourcetable.FromRows([][]string{{"d0"}, {"d1", "x"}}))
	exec := &recordingExecutor{}
	u := NewUpdater(nil, exec, tm, connectorID, nil)

	src := forEach(connector.ConcatMethod{})
	src.URL = "/disk/$2"
	_, err := u.Process(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "/disk/x", exec.calls[0].(*connector.HTTPSource).URL)
}

func TestExecuteForEachEntryInterrupted(t *testing.T) {
	tm := newManager()
	store(tm, "entries", sourcetable.FromRows([][]string{{"d0"}, {"d1"}, {"d2"}}))
	exec := &recordingExecutor{results: []*sourcetable.Table{sourcetable.FromRaw("first"), sourcetable.FromRaw("second")}}
	u := NewUpdater(nil, exec, tm, connectorID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	u.sleep = func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}

	src := forEach(connector.ConcatMethod{})
	src.ExecuteForEachEntryOf.SleepMillis = 10
	got, err := u.Process(ctx, src)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "first", got.RawText(), "entries processed before the interruption are kept")
	assert.Len(t, exec.calls, 1)
}

func TestExecuteForEachEntryMissingTable(t *testing.T) {
	u := NewUpdater(nil, &recordingExecutor{}, newManager(), connectorID, nil)
	got, err := u.Process(context.Background(), forEach(connector.ConcatMethod{}))
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func ptr(s string) *string { return &s }

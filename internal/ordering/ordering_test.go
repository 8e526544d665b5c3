package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/hwmon/internal/connector"
)

func static(key string) connector.Source {
	return &connector.StaticSource{SourceBase: connector.SourceBase{Key: key}}
}

func keys(sources []connector.Source) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Base().Key)
	}
	return out
}

func TestOrder(t *testing.T) {
	sources := map[string]connector.Source{"a": static("a"), "b": static("b"), "c": static("c")}

	tests := []struct {
		name     string
		mapOrder []string
		explicit []string
		tree     [][]string
		want     []string
		wantErr  bool
	}{
		{name: "explicit", explicit: []string{"c", "a", "b"}, want: []string{"c", "a", "b"}},
		{name: "explicit size mismatch", explicit: []string{"a", "b"}, wantErr: true},
		{name: "explicit unknown", explicit: []string{"a", "b", "d"}, wantErr: true},
		{name: "explicit duplicate", explicit: []string{"a", "b", "b"}, wantErr: true},
		{name: "tree", tree: [][]string{{"b"}, {"c", "a"}}, want: []string{"b", "c", "a"}},
		{name: "tree incomplete", tree: [][]string{{"b"}, {"c"}}, wantErr: true},
		{name: "explicit wins over tree", explicit: []string{"a", "b", "c"}, tree: [][]string{{"c", "b", "a"}}, want: []string{"a", "b", "c"}},
		{name: "declaration order", mapOrder: []string{"b", "a", "c"}, want: []string{"b", "a", "c"}},
		{name: "sorted fallback", mapOrder: []string{"c"}, want: []string{"c", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Order(sources, tt.mapOrder, tt.explicit, tt.tree)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigError(err), "Order() error = %v, want *ConfigError", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(got))
		})
	}
}

func TestOrderJobNamesTheJob(t *testing.T) {
	job := &connector.Job{
		Monitor:        "disk",
		Name:           "discovery",
		Sources:        map[string]connector.Source{"a": static("a")},
		ExecutionOrder: []string{"b"},
	}
	_, err := OrderJob(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk.discovery")
}

func TestDependencyTree(t *testing.T) {
	job := &connector.Job{Monitor: "disk", Name: "discovery"}
	job.Sources = map[string]connector.Source{
		"source1": &connector.CommandLineSource{CommandLine: "lsblk"},
		"source2": &connector.CopySource{From: "${source::" + job.SourceKey("source1") + "}"},
		"source3": &connector.TableJoinSource{
			LeftTable:  "${source::" + job.SourceKey("source1") + "}",
			RightTable: "${source::" + job.SourceKey("source2") + "}",
		},
		"source4": &connector.HTTPSource{
			SourceBase: connector.SourceBase{
				ExecuteForEachEntryOf: &connector.ExecuteForEachEntryOf{Source: "${source::" + job.SourceKey("source2") + "}"},
			},
			URL: "/disk/$1",
		},
	}

	tree, err := DependencyTree(job)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"source1"}, {"source2"}, {"source3", "source4"}}, tree)

	job.Sources["source1"] = &connector.CopySource{From: "${source::" + job.SourceKey("source3") + "}"}
	_, err = DependencyTree(job)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	job.Sources["source1"] = &connector.CopySource{From: "${source::" + job.SourceKey("source1") + "}"}
	_, err = DependencyTree(job)
	assert.True(t, IsConfigError(err))
}

func TestReferencesIgnoresOtherJobs(t *testing.T) {
	job := &connector.Job{Monitor: "disk", Name: "collect"}
	job.Sources = map[string]connector.Source{
		"source1": &connector.CopySource{From: "${source::monitors.disk.discovery.sources.source1}"},
	}
	tree, err := DependencyTree(job)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"source1"}}, tree)
}

func TestOrderJobFromReferences(t *testing.T) {
	job := &connector.Job{Monitor: "disk", Name: "discovery"}
	ref := func(name string) string { return "${source::" + job.SourceKey(name) + "}" }

	tests := []struct {
		name     string
		sources  map[string]connector.Source
		declared []string
		want     []string
		wantErr  bool
	}{
		{
			name: "declaration order kept when consistent",
			sources: map[string]connector.Source{
				"zeta":  static("zeta"),
				"alpha": &connector.CopySource{SourceBase: connector.SourceBase{Key: "alpha"}, From: ref("zeta")},
			},
			declared: []string{"zeta", "alpha"},
			want:     []string{"zeta", "alpha"},
		},
		{
			name: "reference declared later runs first",
			sources: map[string]connector.Source{
				"copy":  &connector.CopySource{SourceBase: connector.SourceBase{Key: "copy"}, From: ref("lsblk")},
				"lsblk": static("lsblk"),
			},
			declared: []string{"copy", "lsblk"},
			want:     []string{"lsblk", "copy"},
		},
		{
			name: "reference cycle",
			sources: map[string]connector.Source{
				"a": &connector.CopySource{SourceBase: connector.SourceBase{Key: "a"}, From: ref("b")},
				"b": &connector.CopySource{SourceBase: connector.SourceBase{Key: "b"}, From: ref("a")},
			},
			declared: []string{"a", "b"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job.Sources = tt.sources
			job.SourceOrder = tt.declared
			got, err := OrderJob(job)
			if tt.wantErr {
				require.Error(t, err)
				var ce *ConfigError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, "disk.discovery", ce.Job)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(got))
		})
	}
}

package detection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-app/hwmon/internal/collector"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// httpExtension answers HTTP criteria: the criterion passes when its
// ExpectedResult is "ok".
type httpExtension struct {
	mu    sync.Mutex
	calls int
}

func (h *httpExtension) Name() string { return "http" }

func (h *httpExtension) IsValidConfiguration(*telemetry.HostConfiguration) bool { return true }

func (h *httpExtension) SupportsSource(connector.Source) bool { return false }

func (h *httpExtension) SupportsCriterion(c connector.Criterion) bool {
	_, ok := c.(*connector.HTTPCriterion)
	return ok
}

func (h *httpExtension) ProcessSource(context.Context, connector.Source, string, *telemetry.Manager) (*sourcetable.Table, error) {
	return nil, errors.New("unsupported")
}

func (h *httpExtension) ProcessCriterion(_ context.Context, c connector.Criterion, _ string, _ *telemetry.Manager) extension.CriterionTestResult {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if c.(*connector.HTTPCriterion).ExpectedResult == "ok" {
		return extension.Success("HTTP test succeeded.", "200")
	}
	return extension.Failure("HTTP test failed.", "500")
}

func pass() connector.Criterion { return &connector.HTTPCriterion{ExpectedResult: "ok"} }
func fail() connector.Criterion { return &connector.HTTPCriterion{ExpectedResult: "ko"} }

func newTestEngine(t *testing.T) (*Engine, *httpExtension) {
	t.Helper()
	ext := &httpExtension{}
	reg := extension.NewRegistry(nil)
	reg.Register(ext)
	return NewEngine(nil, reg, "1.2.0"), ext
}

func newHost(local bool) *telemetry.Manager {
	return telemetry.NewManager(&telemetry.HostConfiguration{
		HostID:     "srv-1",
		Hostname:   "srv-1.example.com",
		DeviceKind: connector.KindLinux,
		Local:      local,
	})
}

func ids(tested []TestedConnector) []string {
	out := make([]string, 0, len(tested))
	for _, t := range tested {
		out = append(out, t.Connector.ID)
	}
	return out
}

func TestDetectAndSemantics(t *testing.T) {
	engine, ext := newTestEngine(t)
	tm := newHost(false)

	connectors := []*connector.Connector{
		{ID: "AllPass", Criteria: connector.CriterionList{pass(), pass()}},
		{ID: "OneFails", Criteria: connector.CriterionList{pass(), fail()}},
		{ID: "NoCriteria"},
	}

	tested := engine.Detect(context.Background(), tm, connectors)
	require.Len(t, tested, 3)
	assert.True(t, tested[0].IsSuccess())
	assert.False(t, tested[1].IsSuccess())
	assert.Len(t, tested[1].Results, 2, "every criterion is evaluated")
	assert.True(t, tested[2].IsSuccess())
	assert.Equal(t, 4, ext.calls)

	assert.Equal(t, []string{"AllPass", "NoCriteria"}, ids(engine.Accept(tested)))

	_, ok := tm.Connector("allpass")
	assert.True(t, ok, "connectors are registered in the manager")
}

func TestDetectFilters(t *testing.T) {
	tests := []struct {
		name     string
		local    bool
		selected []string
		excluded []string
		want     []string
	}{
		{name: "remote host", want: []string{"Linux", "AnyKind", "RemoteOnly"}},
		{name: "local host", local: true, want: []string{"Linux", "AnyKind", "LocalOnly"}},
		{name: "excluded", excluded: []string{"anykind.yaml"}, want: []string{"Linux", "RemoteOnly"}},
		{name: "selection forces disabled connectors", selected: []string{"Disabled", "linux"}, want: []string{"Linux", "Disabled"}},
	}

	connectors := []*connector.Connector{
		{ID: "Linux", AppliesTo: []connector.DeviceKind{connector.KindLinux}},
		{ID: "Windows", AppliesTo: []connector.DeviceKind{connector.KindWindows}},
		{ID: "AnyKind"},
		{ID: "LocalOnly", ConnectionTypes: []connector.ConnectionType{connector.ConnectionLocal}},
		{ID: "RemoteOnly", ConnectionTypes: []connector.ConnectionType{connector.ConnectionRemote}},
		{ID: "Disabled", DisableAutoDetection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t)
			tm := newHost(tt.local)
			tm.Host.SelectedConnectors = tt.selected
			tm.Host.ExcludedConnectors = tt.excluded

			got := ids(engine.Detect(context.Background(), tm, connectors))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Detect() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectSequentialKeepsOrder(t *testing.T) {
	engine, _ := newTestEngine(t)
	tm := newHost(false)
	tm.Host.Sequential = true

	var connectors []*connector.Connector
	for _, id := range []string{"a", "b", "c", "d"} {
		connectors = append(connectors, &connector.Connector{ID: id, Criteria: connector.CriterionList{pass()}})
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(engine.Detect(context.Background(), tm, connectors)))
}

func TestAcceptSupersedes(t *testing.T) {
	engine, _ := newTestEngine(t)

	tested := []TestedConnector{
		{Connector: &connector.Connector{ID: "Generic"}},
		{Connector: &connector.Connector{ID: "Vendor", Supersedes: []string{"GENERIC.yaml"}}},
		{Connector: &connector.Connector{ID: "Failed", Supersedes: []string{"Vendor"}}, Results: []extension.CriterionTestResult{extension.Failure("", "")}},
	}
	assert.Equal(t, []string{"Vendor"}, ids(engine.Accept(tested)), "a failed connector supersedes nothing")
}

func TestAcceptLastResort(t *testing.T) {
	engine, _ := newTestEngine(t)

	diskJob := &connector.Job{Monitor: "physical_disk", Name: "discovery", Mapping: &connector.Mapping{Source: "${source::s}"}}
	tested := []TestedConnector{
		{Connector: &connector.Connector{ID: "Smart", OnLastResort: "physical_disk"}},
		{Connector: &connector.Connector{ID: "Fans", OnLastResort: "fan"}},
		{Connector: &connector.Connector{ID: "Raid", Jobs: []*connector.Job{diskJob}}},
	}
	assert.Equal(t, []string{"Raid", "Fans"}, ids(engine.Accept(tested)))
}

func TestDeviceTypeCriterion(t *testing.T) {
	tests := []struct {
		name    string
		keep    []connector.DeviceKind
		exclude []connector.DeviceKind
		want    bool
	}{
		{"no restriction", nil, nil, true},
		{"kept", []connector.DeviceKind{connector.KindLinux}, nil, true},
		{"not kept", []connector.DeviceKind{connector.KindWindows}, nil, false},
		{"excluded", nil, []connector.DeviceKind{connector.KindLinux}, false},
		{"excluded other", nil, []connector.DeviceKind{connector.KindAIX}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deviceType(&connector.DeviceTypeCriterion{Keep: tt.keep, Exclude: tt.exclude}, connector.KindLinux)
			assert.Equal(t, tt.want, got.Success)
			assert.Equal(t, "Configured OS type : LINUX", got.ResultText())
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2", "1.2.0", 0},
		{"1.10", "1.9", 1},
		{"0.9.8", "1.0", -1},
		{"v2.0-beta", "2.0.0", 0},
	}

	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestProductRequirements(t *testing.T) {
	assert.True(t, productRequirements(&connector.ProductRequirementsCriterion{}, "1.0").Success)
	assert.True(t, productRequirements(&connector.ProductRequirementsCriterion{EngineVersion: "1.0.5"}, "1.2.0").Success)
	assert.False(t, productRequirements(&connector.ProductRequirementsCriterion{EngineVersion: "2.0"}, "1.2.0").Success)
}

type staticProcesses []collector.ProcessInfo

func (s staticProcesses) Processes(context.Context) ([]collector.ProcessInfo, error) { return s, nil }

func TestProcessCriterion(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.processes = staticProcesses{{PID: 42, Name: "storcli", CommandLine: "/opt/lsi/storcli64 /c0 show", Status: "running"}}

	local := newHost(true)
	remote := newHost(false)

	got := engine.evaluate(context.Background(), local, &connector.Connector{ID: "c"}, &connector.ProcessCriterion{CommandLine: "storcli"})
	assert.True(t, got.Success)

	got = engine.evaluate(context.Background(), local, &connector.Connector{ID: "c"}, &connector.ProcessCriterion{CommandLine: "megacli"})
	assert.False(t, got.Success)

	got = engine.evaluate(context.Background(), remote, &connector.Connector{ID: "c"}, &connector.ProcessCriterion{CommandLine: "megacli"})
	assert.True(t, got.Success)
	assert.Equal(t, "Process presence check: No test will be performed remotely.", got.Message)
}

func TestServiceCriterion(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.localOS = "windows"
	engine.isRunning = func(name string) (bool, error) {
		return strings.EqualFold(name, "Spooler"), nil
	}

	linux := newHost(true)
	got := engine.evaluate(context.Background(), linux, &connector.Connector{ID: "c"}, &connector.ServiceCriterion{Name: "Spooler"})
	assert.False(t, got.Success)
	assert.Error(t, got.Err)

	windows := newHost(true)
	windows.Host.DeviceKind = connector.KindWindows

	got = engine.evaluate(context.Background(), windows, &connector.Connector{ID: "c"}, &connector.ServiceCriterion{Name: "Spooler"})
	assert.True(t, got.Success)
	assert.Equal(t, "The Spooler Windows Service is currently running.", got.Message)

	got = engine.evaluate(context.Background(), windows, &connector.Connector{ID: "c"}, &connector.ServiceCriterion{Name: "MegaRAID"})
	assert.False(t, got.Success)

	got = engine.evaluate(context.Background(), windows, &connector.Connector{ID: "c"}, &connector.ServiceCriterion{})
	assert.True(t, got.Success)

	engine.localOS = "linux"
	got = engine.evaluate(context.Background(), windows, &connector.Connector{ID: "c"}, &connector.ServiceCriterion{Name: "Spooler"})
	assert.True(t, got.Success)
	assert.Equal(t, "Local OS is not Windows. Skipping this test.", got.Message)
}

func TestUnsupportedCriterion(t *testing.T) {
	engine, _ := newTestEngine(t)
	got := engine.evaluate(context.Background(), newHost(false), &connector.Connector{ID: "c"}, &connector.SNMPGetCriterion{OID: "1.3.6.1"})
	assert.False(t, got.Success)
	assert.Contains(t, got.Message, "Error in snmpGet test")
}

func TestStatusInformation(t *testing.T) {
	result := "200"
	tested := TestedConnector{
		Connector: &connector.Connector{ID: "c"},
		Results: []extension.CriterionTestResult{
			{Success: true, Message: "HTTP test succeeded.", Result: &result},
			{Success: true},
			{Success: false, Message: "Process not found."},
		},
	}

	want := "Received Result: 200. HTTP test succeeded.\n" +
		"Received Result: N/A. Process not found.\n" +
		"Conclusion: Test on srv-1 FAILED"
	assert.Equal(t, want, StatusInformation("srv-1", tested))
}

func TestStrategyRun(t *testing.T) {
	engine, _ := newTestEngine(t)
	strategy := NewStrategy(nil, engine)
	tm := newHost(false)

	connectors := []*connector.Connector{
		{ID: "Good", DisplayName: "Good Connector", Information: "Monitors good things", AppliesTo: []connector.DeviceKind{connector.KindWindows, connector.KindLinux}, Criteria: connector.CriterionList{pass()}},
		{ID: "Bad", Criteria: connector.CriterionList{fail()}},
	}

	accepted := strategy.Run(context.Background(), tm, connectors)
	require.Len(t, accepted, 1)
	assert.Equal(t, "Good", accepted[0].ID)

	host, ok := tm.Monitor(models.MonitorTypeHost, "srv-1")
	require.True(t, ok)
	assert.Equal(t, "srv-1.example.com", host.Attributes[models.AttributeHostname])
	assert.True(t, host.IsEndpoint)

	mon, ok := tm.Monitor(models.MonitorTypeConnector, "connector_Good")
	require.True(t, ok)
	assert.Equal(t, "Good Connector", mon.Attributes[models.AttributeName])
	assert.Equal(t, "linux,windows", mon.Attributes[models.AttributeAppliesToOS])
	assert.Equal(t, "Monitors good things", mon.Attributes[models.AttributeDescription])
	assert.Equal(t, "srv-1", mon.Attributes[models.AttributeParentID])
	assert.Equal(t, 1.0, mon.Metrics[models.MetricConnectorStatus].Value)
	assert.Contains(t, mon.Legacy[models.LegacyStatusInformation], "Conclusion: Test on srv-1.example.com SUCCEEDED")

	_, ok = tm.Monitor(models.MonitorTypeConnector, "connector_Bad")
	assert.False(t, ok, "rejected connectors get no monitor")
}

func TestStrategyRunSelected(t *testing.T) {
	engine, _ := newTestEngine(t)
	strategy := NewStrategy(nil, engine)
	tm := newHost(false)
	tm.Host.SelectedConnectors = []string{"Bad"}

	accepted := strategy.Run(context.Background(), tm, []*connector.Connector{{ID: "Bad", Criteria: connector.CriterionList{fail()}}})
	assert.Empty(t, accepted)

	mon, ok := tm.Monitor(models.MonitorTypeConnector, "connector_Bad")
	require.True(t, ok)
	assert.Equal(t, 0.0, mon.Metrics[models.MetricConnectorStatus].Value)
}

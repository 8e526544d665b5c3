package pipeline

import (
	"context"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/detection"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// Job names run in this order. Other names run last, sorted.
var jobPhases = map[string]int{
	"discovery": 0,
	"simple":    1,
	"collect":   2,
}

// Cycle runs one monitoring cycle for a host.
type Cycle struct {
	logger    *zap.Logger
	detection *detection.Strategy
	jobs      *JobRunner
}

// NewCycle creates a cycle runner.
func NewCycle(logger *zap.Logger, strategy *detection.Strategy, jobs *JobRunner) *Cycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cycle{logger: logger.Named("cycle"), detection: strategy, jobs: jobs}
}

// Run detects the connectors applying to the host of tm, runs the jobs of
// each accepted connector and returns the resulting snapshot. Source results
// of the previous cycle are dropped first; monitors are kept. Job failures
// are aggregated in the returned error; the snapshot is always complete up
// to the failing jobs.
func (c *Cycle) Run(ctx context.Context, tm *telemetry.Manager, connectors []*connector.Connector) (models.HostSnapshot, error) {
	tm.ResetNamespaces()
	accepted := c.detection.Run(ctx, tm, connectors)

	var errs error
	for _, conn := range accepted {
		for _, job := range OrderedJobs(conn) {
			if ctx.Err() != nil {
				return tm.Snapshot(), multierr.Append(errs, ctx.Err())
			}
			if err := c.jobs.Run(ctx, tm, conn, job); err != nil {
				c.logger.Warn("Job failed",
					zap.String("hostname", tm.Host.Hostname),
					zap.String("connector", conn.ID),
					zap.String("job", job.Key()),
					zap.Error(err),
				)
				errs = multierr.Append(errs, err)
			}
		}
	}

	snap := tm.Snapshot()
	c.logger.Info("Cycle completed",
		zap.String("hostname", tm.Host.Hostname),
		zap.Int("connectors", len(accepted)),
		zap.Int("monitors", len(snap.Monitors)),
	)
	return snap, errs
}

// OrderedJobs returns the jobs of conn in execution order: discovery, then
// simple, then collect jobs, each group by monitor type.
func OrderedJobs(conn *connector.Connector) []*connector.Job {
	jobs := append([]*connector.Job(nil), conn.Jobs...)
	sort.SliceStable(jobs, func(i, j int) bool {
		pi, pj := phase(jobs[i].Name), phase(jobs[j].Name)
		if pi != pj {
			return pi < pj
		}
		if jobs[i].Name != jobs[j].Name {
			return jobs[i].Name < jobs[j].Name
		}
		return jobs[i].Monitor < jobs[j].Monitor
	})
	return jobs
}

func phase(name string) int {
	if p, ok := jobPhases[name]; ok {
		return p
	}
	return len(jobPhases)
}

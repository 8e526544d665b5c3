// Package pipeline runs the monitoring cycle of a host: connector detection
// followed by the jobs of every accepted connector. A job orders its sources,
// executes them through the source updater, applies their computes, stores
// the results in the connector namespace and maps the rows of its mapping
// source to monitors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/compute"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/ordering"
	"github.com/vitalis-app/hwmon/internal/source"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// DefaultRetryDelay is the wait before a source that came back empty is
// executed again.
const DefaultRetryDelay = 2 * time.Second

var errEmptySource = errors.New("source returned an empty table")

// JobRunner executes connector jobs.
type JobRunner struct {
	logger      *zap.Logger
	extensions  *extension.Registry
	interpreter *compute.Interpreter
	retryDelay  time.Duration
}

// NewJobRunner creates a job runner. A nil interpreter uses the default
// one, a negative retryDelay disables the wait between attempts.
func NewJobRunner(logger *zap.Logger, extensions *extension.Registry, interpreter *compute.Interpreter, retryDelay time.Duration) *JobRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interpreter == nil {
		interpreter = compute.New(logger, nil)
	}
	if retryDelay < 0 {
		retryDelay = 0
	}
	return &JobRunner{
		logger:      logger.Named("job"),
		extensions:  extensions,
		interpreter: interpreter,
		retryDelay:  retryDelay,
	}
}

// Run executes the sources of job in order and stores every result in the
// connector namespace, then applies the job mapping. An invalid source order
// is returned as an *ordering.ConfigError and nothing is executed. A context
// error stops the job; the sources already executed keep their result.
//
// A job other than discovery whose sources reference ${attribute::...} runs
// once per monitor of its type discovered by the connector, with the
// attributes of that monitor.
func (r *JobRunner) Run(ctx context.Context, tm *telemetry.Manager, conn *connector.Connector, job *connector.Job) error {
	log := r.logger.With(
		zap.String("hostname", tm.Host.Hostname),
		zap.String("connector", conn.ID),
		zap.String("job", job.Key()),
	)

	sources, err := ordering.OrderJob(job)
	if err != nil {
		log.Error("Invalid source order, skipping the job", zap.Error(err))
		return err
	}
	if len(sources) == 0 {
		log.Debug("No sources to execute")
	}

	if !perMonitor(job, sources) {
		return r.run(ctx, log, tm, conn, job, sources, nil)
	}

	monitors := tm.ConnectorMonitors(job.Monitor, conn.ID)
	if len(monitors) == 0 {
		log.Debug("No monitor to process")
		return nil
	}
	var errs error
	for i := range monitors {
		mon := &monitors[i]
		if err := r.run(ctx, log.With(zap.String("monitor", mon.ID)), tm, conn, job, sources, mon); err != nil {
			errs = multierr.Append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errs
}

func perMonitor(job *connector.Job, sources []connector.Source) bool {
	if job.Name == "discovery" {
		return false
	}
	for _, src := range sources {
		if source.UsesAttributes(src) {
			return true
		}
	}
	return false
}

// run executes the sources once. mon is the monitor being processed, nil
// when the job is not run per monitor.
func (r *JobRunner) run(ctx context.Context, log *zap.Logger, tm *telemetry.Manager, conn *connector.Connector, job *connector.Job, sources []connector.Source, mon *models.Monitor) error {
	var attributes map[string]string
	if mon != nil {
		attributes = mon.Attributes
	}
	processor := source.NewProcessor(r.logger, r.extensions, tm)
	updater := source.NewUpdater(r.logger, processor, tm, conn.ID, attributes)
	ns := tm.Namespace(conn.ID)

	for _, src := range sources {
		key := src.Base().Key

		table, err := r.execute(ctx, updater, src, ns.WasFilled(key))
		if table == nil || table.IsEmpty() {
			log.Warn("Received an empty source table", zap.String("source", key))
			empty := sourcetable.Empty()
			if table != nil && table.Raw != nil {
				empty.SetRaw(*table.Raw)
			}
			table = empty
		}
		if err != nil {
			ns.SetSourceTable(key, table)
			return fmt.Errorf("job %s interrupted at source %s: %w", job.Key(), key, err)
		}

		table = r.interpreter.ApplyAll(ctx, table, src.Base().Computes, compute.Env{Connector: conn, SourceKey: key})
		ns.SetSourceTable(key, table)
		log.Debug("Source table stored", zap.String("source", key), zap.Int("rows", len(table.Rows)))
	}

	if job.Mapping != nil {
		n := MapMonitors(tm, conn, job, mon, time.Now().UTC())
		log.Debug("Mapping applied", zap.Int("monitors", n))
	}
	return ctx.Err()
}

// execute runs src once, and a second time when it came back empty although
// it had rows during the previous cycle.
func (r *JobRunner) execute(ctx context.Context, updater *source.Updater, src connector.Source, wasFilled bool) (*sourcetable.Table, error) {
	var table *sourcetable.Table
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay), 1), ctx)

	err := backoff.Retry(func() error {
		var err error
		table, err = updater.Process(ctx, src)
		if err != nil {
			return backoff.Permanent(err)
		}
		if table.IsEmpty() && wasFilled {
			r.logger.Debug("Source came back empty, retrying", zap.String("source", src.Base().Key))
			return errEmptySource
		}
		return nil
	}, policy)

	if errors.Is(err, errEmptySource) {
		err = nil
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return table, err
}

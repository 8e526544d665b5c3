// Package scheduler implements the tick-based monitoring loop. Every
// interval it runs one cycle per host, hosts in parallel up to a limit, and
// hands the resulting snapshots to a callback. The scheduler does not export
// data itself.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalis-app/hwmon/internal/config"
	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// CycleRunner runs one monitoring cycle for a host.
type CycleRunner interface {
	Run(ctx context.Context, tm *telemetry.Manager, connectors []*connector.Connector) (models.HostSnapshot, error)
}

// Scheduler runs monitoring cycles periodically.
type Scheduler struct {
	runner     CycleRunner
	hosts      []*telemetry.Manager
	connectors []*connector.Connector
	interval   time.Duration
	parallel   int
	logger     *zap.Logger

	onBatchReady func([]models.HostSnapshot)
}

// New creates a scheduler for hosts. The managers are kept across cycles so
// monitors persist from one cycle to the next.
func New(runner CycleRunner, hosts []*telemetry.Manager, connectors []*connector.Connector, cfg config.CollectionConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	parallel := cfg.ParallelHosts
	if parallel < 1 {
		parallel = 1
	}
	return &Scheduler{
		runner:     runner,
		hosts:      hosts,
		connectors: connectors,
		interval:   cfg.Interval.Duration,
		parallel:   parallel,
		logger:     logger.Named("scheduler"),
	}
}

// OnBatchReady sets the callback invoked with the snapshots of each cycle.
func (s *Scheduler) OnBatchReady(fn func([]models.HostSnapshot)) {
	s.onBatchReady = fn
}

// Start runs a cycle immediately, then once per interval. It blocks until
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	batch := s.RunOnce(ctx)
	if len(batch) > 0 && s.onBatchReady != nil {
		s.onBatchReady(batch)
	}
}

// RunOnce runs one cycle on every host and returns the snapshots in host
// order. A cycle is bounded by the interval so a slow host cannot delay the
// next tick indefinitely.
func (s *Scheduler) RunOnce(ctx context.Context) []models.HostSnapshot {
	start := time.Now()
	snapshots := make([]models.HostSnapshot, len(s.hosts))

	var g errgroup.Group
	g.SetLimit(s.parallel)
	for i, tm := range s.hosts {
		i, tm := i, tm
		g.Go(func() error {
			cycleCtx, cancel := context.WithTimeout(ctx, s.interval)
			defer cancel()

			snap, err := s.runner.Run(cycleCtx, tm, s.connectors)
			if err != nil {
				s.logger.Warn("Cycle completed with errors",
					zap.String("hostname", tm.Host.Hostname),
					zap.Error(err))
			}
			snapshots[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("Monitoring cycle done",
		zap.Int("hosts", len(s.hosts)),
		zap.Duration("elapsed", time.Since(start)))
	return snapshots
}

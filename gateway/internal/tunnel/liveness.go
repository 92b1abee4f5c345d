package tunnel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/alerting"
)

// LivenessMonitor periodically sweeps the Registry for stale Sessions and
// terminates them. It wraps gocron to fire one recurring sweep job on a
// fixed interval, in singleton mode so a slow sweep can never overlap the
// next tick.
type LivenessMonitor struct {
	cron     gocron.Scheduler
	registry *Registry
	alerts   alerting.Service
	tStale   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewLivenessMonitor builds a monitor that sweeps every interval and
// considers a Session stale after tStale without a heartbeat. interval
// should be no more than half the configured heartbeat cadence so a
// single missed heartbeat cannot go undetected for more than one sweep.
// alerts may be nil in tests, in which case reaped sessions are only logged.
func NewLivenessMonitor(registry *Registry, alerts alerting.Service, tStale, interval time.Duration, logger *zap.Logger) (*LivenessMonitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("tunnel: creating gocron scheduler: %w", err)
	}
	return &LivenessMonitor{
		cron:     s,
		registry: registry,
		alerts:   alerts,
		tStale:   tStale,
		interval: interval,
		logger:   logger.Named("liveness"),
	}, nil
}

// Start schedules the recurring sweep and starts the underlying gocron
// scheduler. Call Stop to shut it down.
func (m *LivenessMonitor) Start() error {
	_, err := m.cron.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("tunnel: scheduling liveness sweep: %w", err)
	}
	m.cron.Start()
	m.logger.Info("liveness monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("stale_after", m.tStale),
	)
	return nil
}

// Stop shuts down the sweep, waiting for any in-flight sweep to finish.
func (m *LivenessMonitor) Stop() error {
	if err := m.cron.Shutdown(); err != nil {
		return fmt.Errorf("tunnel: liveness monitor shutdown: %w", err)
	}
	return nil
}

// sweep terminates and evicts every stale Session. Terminate is idempotent
// and safe to call even if the Session already tore itself down for an
// unrelated reason (socket error, explicit DISCONNECT).
func (m *LivenessMonitor) sweep() {
	for _, s := range m.registry.Snapshot() {
		if !s.Active() {
			m.registry.Remove(s)
			continue
		}
		if s.IsStale(m.tStale) {
			m.logger.Warn("session stale, terminating",
				zap.String("session_id", s.ID().String()),
				zap.String("database_id", s.DatabaseID().String()),
				zap.Duration("since_last_heartbeat", time.Since(s.LastHeartbeatAt())),
			)
			s.Terminate("heartbeat stale")
			m.registry.Remove(s)
			if m.alerts != nil {
				if err := m.alerts.NotifySessionExpired(context.Background(), s.DatabaseID(), s.DatabaseName()); err != nil {
					m.logger.Warn("failed to fire session-expired alert", zap.Error(err))
				}
			}
		}
	}
}

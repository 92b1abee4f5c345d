package pendingaction

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// retention is how long a terminal (approved/rejected/executed/expired)
// action is kept around for the chatbot layer to still read before the
// expirer drops it from memory.
const retention = 24 * time.Hour

// Expirer periodically sweeps a Store for pending actions past their TTL,
// mirroring the shape of tunnel.LivenessMonitor: one recurring gocron job
// in singleton mode.
type Expirer struct {
	cron     gocron.Scheduler
	store    *Store
	interval time.Duration
	logger   *zap.Logger
}

// NewExpirer builds an Expirer that sweeps store every interval.
func NewExpirer(store *Store, interval time.Duration, logger *zap.Logger) (*Expirer, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("pendingaction: creating gocron scheduler: %w", err)
	}
	return &Expirer{
		cron:     s,
		store:    store,
		interval: interval,
		logger:   logger.Named("pendingaction_expirer"),
	}, nil
}

// Start schedules the recurring sweep.
func (e *Expirer) Start() error {
	_, err := e.cron.NewJob(
		gocron.DurationJob(e.interval),
		gocron.NewTask(func() { e.store.expireOnce(retention) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("pendingaction: scheduling expirer sweep: %w", err)
	}
	e.cron.Start()
	e.logger.Info("pending action expirer started", zap.Duration("interval", e.interval))
	return nil
}

// Stop shuts down the sweep, waiting for any in-flight sweep to finish.
func (e *Expirer) Stop() error {
	if err := e.cron.Shutdown(); err != nil {
		return fmt.Errorf("pendingaction: expirer shutdown: %w", err)
	}
	return nil
}

// Package scheduler runs the periodic housekeeping loop: health
// heartbeats on the control channel and cron-gated pruning of old
// checkpoints.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"ogma/internal/checkpoint"
	"ogma/internal/config"
	"ogma/internal/natsbus"
)

type Scheduler struct {
	checkpoints  checkpoint.Store
	events       *natsbus.Publisher
	pollInterval time.Duration
	pruneCron    string
	retention    time.Duration

	cron      *gronx.Gronx
	startedAt time.Time
	lastPrune time.Time
}

func New(cps checkpoint.Store, events *natsbus.Publisher, cfg config.SchedulerConfig, retention time.Duration) *Scheduler {
	return &Scheduler{
		checkpoints:  cps,
		events:       events,
		pollInterval: cfg.PollInterval,
		pruneCron:    cfg.PruneCron,
		retention:    retention,
		cron:         gronx.New(),
	}
}

// Start runs the loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}
	s.startedAt = time.Now()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval, "prune_cron", s.pruneCron)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Scheduler) poll() {
	s.heartbeat()
	s.maybePrune(time.Now())
}

func (s *Scheduler) heartbeat() {
	if s.events == nil {
		return
	}
	s.events.EmitControl(natsbus.EventHealth, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// maybePrune removes expired checkpoints when the cron expression is
// due. The gate fires at most once per minute so a short poll interval
// does not repeat the prune.
func (s *Scheduler) maybePrune(now time.Time) {
	if s.checkpoints == nil || s.pruneCron == "" || s.retention <= 0 {
		return
	}

	minute := now.Truncate(time.Minute)
	if minute.Equal(s.lastPrune) {
		return
	}

	due, err := s.cron.IsDue(s.pruneCron, minute)
	if err != nil {
		slog.Warn("invalid prune cron expression", "cron", s.pruneCron, "error", err)
		return
	}
	if !due {
		return
	}
	s.lastPrune = minute

	cutoff := now.Add(-s.retention)
	removed, err := s.checkpoints.Prune(cutoff)
	if err != nil {
		slog.Error("checkpoint prune failed", "error", err)
		return
	}
	slog.Info("checkpoints pruned", "removed", removed, "cutoff", cutoff)
}

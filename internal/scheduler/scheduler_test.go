package scheduler

import (
	"testing"
	"time"

	"ogma/internal/checkpoint"
	"ogma/internal/config"
)

type countingStore struct {
	checkpoint.Store
	prunes  int
	cutoffs []time.Time
}

func (c *countingStore) Prune(before time.Time) (int, error) {
	c.prunes++
	c.cutoffs = append(c.cutoffs, before)
	return 0, nil
}

func newTestScheduler(cps checkpoint.Store, cron string, retention time.Duration) *Scheduler {
	return New(cps, nil, config.SchedulerConfig{
		PollInterval: 30 * time.Second,
		PruneCron:    cron,
	}, retention)
}

func TestPruneFiresWhenCronIsDue(t *testing.T) {
	cps := &countingStore{}
	s := newTestScheduler(cps, "0 3 * * *", 24*time.Hour)

	at3am := time.Date(2025, 6, 1, 3, 0, 10, 0, time.UTC)
	s.maybePrune(at3am)

	if cps.prunes != 1 {
		t.Fatalf("expected one prune, got %d", cps.prunes)
	}
	wantCutoff := at3am.Add(-24 * time.Hour)
	if !cps.cutoffs[0].Equal(wantCutoff) {
		t.Fatalf("cutoff %s, want %s", cps.cutoffs[0], wantCutoff)
	}
}

func TestPruneSkipsWhenCronNotDue(t *testing.T) {
	cps := &countingStore{}
	s := newTestScheduler(cps, "0 3 * * *", 24*time.Hour)

	s.maybePrune(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))

	if cps.prunes != 0 {
		t.Fatalf("expected no prune at noon, got %d", cps.prunes)
	}
}

func TestPruneFiresOncePerMinute(t *testing.T) {
	cps := &countingStore{}
	s := newTestScheduler(cps, "* * * * *", time.Hour)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.maybePrune(base)
	s.maybePrune(base.Add(10 * time.Second))
	s.maybePrune(base.Add(30 * time.Second))

	if cps.prunes != 1 {
		t.Fatalf("same minute must prune once, got %d", cps.prunes)
	}

	s.maybePrune(base.Add(time.Minute))
	if cps.prunes != 2 {
		t.Fatalf("next minute must prune again, got %d", cps.prunes)
	}
}

func TestPruneDisabledWithoutStoreOrRetention(t *testing.T) {
	s := newTestScheduler(nil, "* * * * *", time.Hour)
	s.maybePrune(time.Now())

	cps := &countingStore{}
	s = newTestScheduler(cps, "* * * * *", 0)
	s.maybePrune(time.Now())
	if cps.prunes != 0 {
		t.Fatalf("zero retention must disable pruning, got %d prunes", cps.prunes)
	}

	s = newTestScheduler(cps, "", time.Hour)
	s.maybePrune(time.Now())
	if cps.prunes != 0 {
		t.Fatalf("empty cron must disable pruning, got %d prunes", cps.prunes)
	}
}

func TestInvalidCronDoesNotPrune(t *testing.T) {
	cps := &countingStore{}
	s := newTestScheduler(cps, "not a cron", time.Hour)

	s.maybePrune(time.Now())
	if cps.prunes != 0 {
		t.Fatalf("invalid cron must not prune, got %d", cps.prunes)
	}
}

// Package sweep lapses expired role assignments on a schedule.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Lapser marks expired assignments inactive and reports how many it touched.
type Lapser interface {
	LapseExpired(ctx context.Context) (int, error)
}

// Result describes one sweep.
type Result struct {
	Lapsed  int
	Skipped bool
}

// Sweeper runs Lapser.LapseExpired on a cron schedule. With a Lock, only
// one replica sweeps at a time.
type Sweeper struct {
	cron    *cron.Cron
	lapser  Lapser
	lock    *Lock
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewSweeper creates a sweeper. lock may be nil.
func NewSweeper(lapser Lapser, lock *Lock, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		cron:    cron.New(),
		lapser:  lapser,
		lock:    lock,
		logger:  logger,
		timeout: time.Minute,
	}
}

// RunOnce performs a single sweep. A lock held elsewhere is not an error:
// the sweep is reported as skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	if s.lock != nil {
		release, err := s.lock.Acquire(ctx)
		if errors.Is(err, ErrLockHeld) {
			s.logger.Debug("lapse sweep skipped, lock held elsewhere")
			return Result{Skipped: true}, nil
		}
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lock", "error", err)
			}
		}()
	}

	n, err := s.lapser.LapseExpired(ctx)
	if err != nil {
		return Result{}, err
	}
	if n > 0 {
		s.logger.Info("lapsed expired assignments", "count", n)
	}
	return Result{Lapsed: n}, nil
}

// Start schedules the sweep and starts the cron runner.
func (s *Sweeper) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("sweep: already started")
	}

	id, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("scheduled lapse sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.running = true
	s.cron.Start()
	s.logger.Info("lapse sweeper started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.running = false
	s.logger.Info("lapse sweeper stopped")
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
)

// Pruner deletes data recorded before a cutoff
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// RetentionTarget names a Pruner for logging
type RetentionTarget struct {
	Name   string
	Pruner Pruner
}

// Retention prunes samples and reports older than the configured number of
// days, on a fixed interval. A retention of 0 days keeps everything.
type Retention struct {
	settings  SettingsSource
	targets   []RetentionTarget
	scheduler gocron.Scheduler
	now       func() time.Time
}

func NewRetention(ctx context.Context, settings SettingsSource, interval time.Duration, targets ...RetentionTarget) (*Retention, error) {
	if interval <= 0 {
		return nil, errors.New("retention interval must be positive")
	}
	r := &Retention{settings: settings, targets: targets, now: time.Now}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := r.RunOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "retention run failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	r.scheduler = s
	return r, nil
}

// RunOnce prunes every target with the current retention setting
func (r *Retention) RunOnce(ctx context.Context) error {
	days := r.settings.Settings().RetentionDays
	if days <= 0 {
		return nil
	}
	cutoff := r.now().Add(-time.Duration(days) * 24 * time.Hour)

	var errs []error
	for _, t := range r.targets {
		n, err := t.Pruner.Prune(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		if n > 0 {
			slog.InfoContext(ctx, "retention pruned", "target", t.Name, "removed", n, "before", cutoff)
		}
	}
	return errors.Join(errs...)
}

func (r *Retention) Start() {
	r.scheduler.Start()
}

func (r *Retention) Shutdown() error {
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutting down retention scheduler: %w", err)
	}
	return nil
}

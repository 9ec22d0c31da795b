// Package schedule fires schedule triggers from cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/triggers"
	"github.com/robfig/cron/v3"
)

var ErrInvalidCron = errors.New("invalid cron expression")

// Source is a cron driven trigger source. Each entry fires a schedule trigger
// carrying the entry's data plus scheduleId and timestamp.
type Source struct {
	firer  triggers.Firer
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewSource(firer triggers.Firer, logger *slog.Logger) *Source {
	logger = logger.With("module", "schedule_trigger")
	cronLogger := cronLogAdapter{logger: logger}

	return &Source{
		firer:  firer,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Add schedules id with a standard five field expression or a descriptor such
// as "@every 5m". Adding an existing id replaces its schedule.
func (s *Source) Add(id, expr string, data map[string]any) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidCron, expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok {
		s.cron.Remove(existing)
	}

	payload := maps.Clone(data)

	s.entries[id] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(id, payload)
	}))

	s.logger.Info("Schedule registered", "schedule_id", id, "cron", expr)

	return nil
}

// Remove drops the schedule registered as id.
func (s *Source) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// IDs returns the registered schedule ids, sorted.
func (s *Source) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.entries))
}

// Next returns the next activation of id.
func (s *Source) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}

	return s.cron.Entry(entry).Next, true
}

func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Starting schedule source", "entries", len(s.IDs()))
	s.cron.Start()

	return nil
}

// Stop halts the scheduler and waits for running jobs until ctx expires.
func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping schedule source")

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) fire(id string, data map[string]any) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	payload := maps.Clone(data)
	if payload == nil {
		payload = make(map[string]any)
	}

	payload["scheduleId"] = id
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	_, err := s.firer.Fire(ctx, models.TriggerSchedule, payload, "schedule")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fire schedule trigger", "schedule_id", id, "error", err)
	}
}

type cronLogAdapter struct {
	logger *slog.Logger
}

func (l cronLogAdapter) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

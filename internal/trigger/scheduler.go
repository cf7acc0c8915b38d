// Package trigger runs workflows on cron schedules. Each fire mints a
// service token and seeds it into the execution state so automated runs
// carry credentials without any node knowing about authentication.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Narcis13/workscript/internal/engine"
	"github.com/Narcis13/workscript/internal/platform/auth"
	"github.com/Narcis13/workscript/internal/platform/logger"
)

// ScheduleEntry binds a cron spec to a stored workflow.
type ScheduleEntry struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflowId"`
	Spec       string     `json:"spec"`
	LastRun    *time.Time `json:"lastRun,omitempty"`

	cronID cron.EntryID
}

// Scheduler manages scheduled workflow executions.
type Scheduler struct {
	cron   *cron.Cron
	queue  engine.SubmissionQueue
	tokens *auth.TokenService
	log    logger.Logger

	mu      sync.RWMutex
	entries map[string]*ScheduleEntry
}

// NewScheduler creates a scheduler that enqueues submissions on fire.
func NewScheduler(queue engine.SubmissionQueue, tokens *auth.TokenService, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		queue:   queue,
		tokens:  tokens,
		log:     log,
		entries: make(map[string]*ScheduleEntry),
	}
}

// Add registers a schedule and returns its id.
func (s *Scheduler) Add(workflowID, spec string) (*ScheduleEntry, error) {
	entry := &ScheduleEntry{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Spec:       spec,
	}

	cronID, err := s.cron.AddFunc(spec, func() { s.fire(entry) })
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	entry.cronID = cronID

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	s.log.Info("schedule registered", "scheduleId", entry.ID, "workflowId", workflowID, "spec", spec)
	return entry, nil
}

// Remove drops a schedule.
func (s *Scheduler) Remove(scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[scheduleID]
	if !ok {
		return fmt.Errorf("schedule %s not found", scheduleID)
	}
	s.cron.Remove(entry.cronID)
	delete(s.entries, scheduleID)
	return nil
}

// List returns all schedules.
func (s *Scheduler) List() []*ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ScheduleEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for in-flight fire callbacks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) fire(entry *ScheduleEntry) {
	now := time.Now()
	s.mu.Lock()
	entry.LastRun = &now
	s.mu.Unlock()

	seed := map[string]interface{}{}
	if s.tokens != nil {
		token, err := s.tokens.Issue(entry.WorkflowID, "schedule")
		if err != nil {
			s.log.Error("failed to mint service token", "scheduleId", entry.ID, "error", err)
			return
		}
		seed["JWT_token"] = token
	}

	sub := &engine.Submission{
		WorkflowID: entry.WorkflowID,
		Options: &engine.Options{
			Seed:   seed,
			Source: "schedule",
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.queue.Enqueue(ctx, sub); err != nil {
		s.log.Error("failed to enqueue scheduled run",
			"scheduleId", entry.ID, "workflowId", entry.WorkflowID, "error", err)
		return
	}

	s.log.Info("scheduled run enqueued", "scheduleId", entry.ID, "workflowId", entry.WorkflowID)
}

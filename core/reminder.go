package core

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"
)

// Notifier delivers a due-task reminder to its owner.
type Notifier interface {
	Notify(ctx context.Context, user UserRecord, task Task) error
}

// LogNotifier writes reminders to the application log. Stands in for mail or
// push delivery.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, user UserRecord, task Task) error {
	due := ""
	if task.DueAt != nil {
		due = task.DueAt.Format(time.RFC3339)
	}
	log.Printf("reminder: user=%s task=%d title=%q due=%s", user.Username, task.ID, task.Title, due)
	return nil
}

// ReminderScheduler periodically scans for tasks whose deadline falls within
// the lead window and enqueues their IDs for the worker pool.
type ReminderScheduler struct {
	tasks    TaskRepository
	queue    QueueClient
	lead     time.Duration
	interval time.Duration
	batch    int
}

func NewReminderScheduler(tasks TaskRepository, queue QueueClient, lead time.Duration) *ReminderScheduler {
	return &ReminderScheduler{
		tasks:    tasks,
		queue:    queue,
		lead:     lead,
		interval: time.Minute,
		batch:    200,
	}
}

// Run blocks until ctx is done, scanning once per interval.
func (s *ReminderScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ScanOnce(ctx, time.Now()); err != nil {
				log.Printf("[scheduler] scan error: %v", err)
			} else if n > 0 {
				log.Printf("[scheduler] enqueued %d reminders", n)
			}
		}
	}
}

// ScanOnce enqueues every unreminded task due before now + lead. A task may
// be enqueued again if a previous job has not yet marked it reminded; the
// processor is idempotent so duplicates are harmless.
func (s *ReminderScheduler) ScanOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := s.tasks.DueForReminder(ctx, now.Add(s.lead), s.batch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, t := range due {
		if err := s.queue.Enqueue(ctx, PendingRemindersKey, strconv.FormatInt(t.ID, 10)); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// ReminderProcessor handles one queued reminder job.
type ReminderProcessor struct {
	tasks    TaskRepository
	users    UserRepository
	notifier Notifier
}

func NewReminderProcessor(tasks TaskRepository, users UserRepository, notifier Notifier) *ReminderProcessor {
	return &ReminderProcessor{tasks: tasks, users: users, notifier: notifier}
}

// Process marks the task reminded and delivers the notification. The
// reminded_at stamp is claimed first so a crash mid-delivery results in a
// missed notification rather than a duplicate one.
func (p *ReminderProcessor) Process(ctx context.Context, job string) error {
	id, err := strconv.ParseInt(job, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed job %q: %w", job, err)
	}

	task, err := p.tasks.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load task %d: %w", id, err)
	}
	if task == nil || task.Status == "done" {
		// Deleted or completed since it was enqueued.
		return nil
	}

	if err := p.tasks.MarkReminded(ctx, id); err != nil {
		return err
	}

	user, err := p.users.FindByID(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", task.UserID, err)
	}
	if user == nil {
		return nil
	}
	return p.notifier.Notify(ctx, *user, *task)
}

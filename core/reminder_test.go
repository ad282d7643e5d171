package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockTaskRepo struct {
	createFn         func(ctx context.Context, t Task) (int64, time.Time, error)
	findByIDFn       func(ctx context.Context, id int64) (*Task, error)
	listByUserFn     func(ctx context.Context, userID int64, status string, page, perPage int) ([]Task, int, error)
	updateFn         func(ctx context.Context, id, userID int64, upd TaskUpdate) (*Task, error)
	deleteFn         func(ctx context.Context, id, userID int64) error
	countByUserFn    func(ctx context.Context, userID int64) (int, error)
	countDoneFn      func(ctx context.Context, userID int64) (int, error)
	dueForReminderFn func(ctx context.Context, until time.Time, limit int) ([]Task, error)
	markRemindedFn   func(ctx context.Context, id int64) error
}

func (m *mockTaskRepo) Create(ctx context.Context, t Task) (int64, time.Time, error) {
	if m.createFn != nil {
		return m.createFn(ctx, t)
	}
	return 1, time.Now(), nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id int64) (*Task, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTaskRepo) ListByUser(ctx context.Context, userID int64, status string, page, perPage int) ([]Task, int, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, status, page, perPage)
	}
	return nil, 0, nil
}

func (m *mockTaskRepo) Update(ctx context.Context, id, userID int64, upd TaskUpdate) (*Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, userID, upd)
	}
	return nil, nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, id, userID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, userID)
	}
	return nil
}

func (m *mockTaskRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	if m.countByUserFn != nil {
		return m.countByUserFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockTaskRepo) CountDoneByUser(ctx context.Context, userID int64) (int, error) {
	if m.countDoneFn != nil {
		return m.countDoneFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockTaskRepo) DueForReminder(ctx context.Context, until time.Time, limit int) ([]Task, error) {
	if m.dueForReminderFn != nil {
		return m.dueForReminderFn(ctx, until, limit)
	}
	return nil, nil
}

func (m *mockTaskRepo) MarkReminded(ctx context.Context, id int64) error {
	if m.markRemindedFn != nil {
		return m.markRemindedFn(ctx, id)
	}
	return nil
}

type recordingNotifier struct {
	notified []int64
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, _ UserRecord, task Task) error {
	n.notified = append(n.notified, task.ID)
	return n.err
}

func TestSchedulerEnqueuesDueTasks(t *testing.T) {
	q, _ := newTestQueue(t)
	now := time.Now()

	tasks := &mockTaskRepo{
		dueForReminderFn: func(ctx context.Context, until time.Time, limit int) ([]Task, error) {
			want := now.Add(time.Hour)
			if until.Sub(want) > time.Second || want.Sub(until) > time.Second {
				t.Fatalf("unexpected scan horizon %v", until)
			}
			return []Task{{ID: 11}, {ID: 12}}, nil
		},
	}

	s := NewReminderScheduler(tasks, q, time.Hour)
	n, err := s.ScanOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("ScanOnce error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 enqueued, got %d", n)
	}

	for _, want := range []string{"11", "12"} {
		job, err := q.Reserve(context.Background(), PendingRemindersKey, ProcessingRemindersKey, time.Minute)
		if err != nil {
			t.Fatalf("Reserve error: %v", err)
		}
		if job != want {
			t.Fatalf("expected job %s, got %s", want, job)
		}
	}
}

func TestProcessorDeliversAndMarks(t *testing.T) {
	due := time.Now().Add(30 * time.Minute)
	marked := []int64{}
	tasks := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id int64) (*Task, error) {
			return &Task{ID: id, UserID: 5, Title: "ship release", Status: "todo", DueAt: &due}, nil
		},
		markRemindedFn: func(ctx context.Context, id int64) error {
			marked = append(marked, id)
			return nil
		},
	}
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*UserRecord, error) {
			return &UserRecord{ID: id, Username: "eve"}, nil
		},
	}
	notifier := &recordingNotifier{}

	p := NewReminderProcessor(tasks, users, notifier)
	if err := p.Process(context.Background(), "33"); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(marked) != 1 || marked[0] != 33 {
		t.Fatalf("expected task 33 marked, got %v", marked)
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != 33 {
		t.Fatalf("expected task 33 notified, got %v", notifier.notified)
	}
}

func TestProcessorSkipsAlreadyReminded(t *testing.T) {
	tasks := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id int64) (*Task, error) {
			return &Task{ID: id, UserID: 5, Status: "todo"}, nil
		},
		markRemindedFn: func(ctx context.Context, id int64) error {
			return ErrTaskAlreadyReminded
		},
	}
	notifier := &recordingNotifier{}

	p := NewReminderProcessor(tasks, &mockUserRepo{}, notifier)
	err := p.Process(context.Background(), "44")
	if !errors.Is(err, ErrTaskAlreadyReminded) {
		t.Fatalf("expected ErrTaskAlreadyReminded, got %v", err)
	}
	if len(notifier.notified) != 0 {
		t.Fatal("notifier must not fire for an already-reminded task")
	}
}

func TestProcessorSkipsDeletedOrDoneTask(t *testing.T) {
	notifier := &recordingNotifier{}
	p := NewReminderProcessor(&mockTaskRepo{}, &mockUserRepo{}, notifier)

	// FindByID returns nil: task deleted since enqueue.
	if err := p.Process(context.Background(), "55"); err != nil {
		t.Fatalf("Process error for deleted task: %v", err)
	}

	doneTasks := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id int64) (*Task, error) {
			return &Task{ID: id, Status: "done"}, nil
		},
	}
	p = NewReminderProcessor(doneTasks, &mockUserRepo{}, notifier)
	if err := p.Process(context.Background(), "56"); err != nil {
		t.Fatalf("Process error for done task: %v", err)
	}

	if len(notifier.notified) != 0 {
		t.Fatal("no notifications expected")
	}
}

func TestProcessorMalformedJob(t *testing.T) {
	p := NewReminderProcessor(&mockTaskRepo{}, &mockUserRepo{}, &recordingNotifier{})
	if err := p.Process(context.Background(), "not-a-number"); err == nil {
		t.Fatal("expected error for malformed job payload")
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Task statuses accepted by the API.
var taskStatuses = []string{"todo", "in_progress", "done"}

func isValidTaskStatus(s string) bool {
	for _, v := range taskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Task represents a single task row owned by one user.
type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	RemindedAt  *time.Time `json:"reminded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskUpdate carries optional fields for a partial update; nil means keep.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *int
	DueAt       *time.Time
	ClearDueAt  bool
}

// ErrTaskAlreadyReminded signals the reminder worker that another worker (or
// an earlier retry) already delivered this reminder.
var ErrTaskAlreadyReminded = errors.New("task already reminded")

// TaskRepository defines persistence operations needed by the API and the
// reminder worker.
type TaskRepository interface {
	Create(ctx context.Context, t Task) (int64, time.Time, error)
	FindByID(ctx context.Context, id int64) (*Task, error)
	ListByUser(ctx context.Context, userID int64, status string, page, perPage int) ([]Task, int, error)
	Update(ctx context.Context, id, userID int64, upd TaskUpdate) (*Task, error)
	Delete(ctx context.Context, id, userID int64) error
	CountByUser(ctx context.Context, userID int64) (int, error)
	CountDoneByUser(ctx context.Context, userID int64) (int, error)
	DueForReminder(ctx context.Context, until time.Time, limit int) ([]Task, error)
	MarkReminded(ctx context.Context, id int64) error
}

// PgTaskRepository is a pgx implementation.
// NOTE: Expects a `tasks` table to exist.
type PgTaskRepository struct {
	db *pgxpool.Pool
}

func NewPgTaskRepository(db *pgxpool.Pool) *PgTaskRepository {
	return &PgTaskRepository{db: db}
}

const taskColumns = `id, user_id, title, description, status, priority, due_at, reminded_at, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueAt, &t.RemindedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PgTaskRepository) Create(ctx context.Context, t Task) (int64, time.Time, error) {
	const q = `INSERT INTO tasks (user_id, title, description, status, priority, due_at)
               VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`
	var id int64
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, q, t.UserID, t.Title, t.Description, t.Status, t.Priority, t.DueAt).Scan(&id, &createdAt); err != nil {
		return 0, time.Time{}, err
	}
	return id, createdAt, nil
}

func (r *PgTaskRepository) FindByID(ctx context.Context, id int64) (*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1`
	t, err := scanTask(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *PgTaskRepository) ListByUser(ctx context.Context, userID int64, status string, page, perPage int) ([]Task, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}

	where := `WHERE user_id=$1`
	args := []any{userID}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQ := fmt.Sprintf(`SELECT %s FROM tasks %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		taskColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Task, 0, perPage)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *t)
	}
	return items, total, rows.Err()
}

// Update applies a partial update scoped to the owning user. Returns nil when
// the task does not exist or belongs to someone else.
func (r *PgTaskRepository) Update(ctx context.Context, id, userID int64, upd TaskUpdate) (*Task, error) {
	set := []string{"updated_at=NOW()"}
	args := []any{}
	next := 1

	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s=$%d", col, next))
		args = append(args, v)
		next++
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Priority != nil {
		add("priority", *upd.Priority)
	}
	if upd.ClearDueAt {
		set = append(set, "due_at=NULL", "reminded_at=NULL")
	} else if upd.DueAt != nil {
		add("due_at", *upd.DueAt)
		// A moved deadline gets a fresh reminder.
		set = append(set, "reminded_at=NULL")
	}

	q := fmt.Sprintf(`UPDATE tasks SET %s WHERE id=$%d AND user_id=$%d RETURNING %s`,
		strings.Join(set, ", "), next, next+1, taskColumns)
	args = append(args, id, userID)

	t, err := scanTask(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *PgTaskRepository) Delete(ctx context.Context, id, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("task not found")
	}
	return nil
}

func (r *PgTaskRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

func (r *PgTaskRepository) CountDoneByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id=$1 AND status='done'`, userID).Scan(&n)
	return n, err
}

// DueForReminder returns unreminded, unfinished tasks whose deadline falls at
// or before until.
func (r *PgTaskRepository) DueForReminder(ctx context.Context, until time.Time, limit int) ([]Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
          WHERE due_at IS NOT NULL AND due_at <= $1 AND reminded_at IS NULL AND status <> 'done'
          ORDER BY due_at LIMIT $2`
	rows, err := r.db.Query(ctx, q, until, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	return items, rows.Err()
}

// MarkReminded stamps reminded_at once; a second call for the same task
// reports ErrTaskAlreadyReminded so retried jobs stay idempotent.
func (r *PgTaskRepository) MarkReminded(ctx context.Context, id int64) error {
	const q = `UPDATE tasks SET reminded_at=NOW() WHERE id=$1 AND reminded_at IS NULL`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskAlreadyReminded
	}
	return nil
}

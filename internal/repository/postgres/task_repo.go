package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/taskpilot/notifier/internal/domain/task"
)

var _ task.Reader = (*TaskRepoImpl)(nil)

// TaskRepoImpl is a read-only view into the tasks table, which is owned by
// the external task service.
type TaskRepoImpl struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepoImpl { return &TaskRepoImpl{db: db} }

const qTaskStatusTitle = `SELECT status, title FROM tasks WHERE id = $1;`

func (r *TaskRepoImpl) StatusAndTitle(ctx context.Context, id int64) (task.Status, string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		st    task.Status
		title string
	)
	if err := r.db.Pool.QueryRow(ctx, qTaskStatusTitle, id).Scan(&st, &title); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("scan task: %w", err)
	}
	return st, title, nil
}

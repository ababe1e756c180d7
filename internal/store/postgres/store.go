// Package postgres is the hand-written-SQL Store implementation
// (pgx + sqlx), kept alongside store/gormstore because GORM's update
// builder does not expose the row-level RowsAffected semantics the
// claim/release/circuit-update primitives depend on as directly as
// database/sql's Result does (SPEC_FULL.md §5). It targets postgres
// only; schema is applied via store/migrations (goose), never
// AutoMigrate.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver registration

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

type Store struct {
	db *sqlx.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- Tasks / queue ---------------------------------------------------

func (s *Store) InsertTasks(ctx context.Context, tasks []*domain.Task) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC()
	for _, t := range tasks {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.Status == "" {
			t.Status = domain.TaskPending
		}
		if t.Version == 0 {
			t.Version = 1
		}
		acc, _ := json.Marshal(t.AcceptanceCriteria)
		exp, _ := json.Marshal(t.ModuleExports)
		dep, _ := json.Marshal(t.DependsOn)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, task_key, title, goal, phase, sequence, spec_id, test_file,
				impl_file, verify_command, done_criteria, acceptance_criteria,
				module_exports, depends_on, status, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			t.ID, t.TaskKey, t.Title, t.Goal, t.Phase, t.Sequence, t.SpecID, t.TestFile,
			t.ImplFile, t.VerifyCommand, t.DoneCriteria, acc, exp, dep, string(t.Status),
			t.Version, now, now)
		if err != nil {
			return fmt.Errorf("postgres: insert task %s: %w", t.TaskKey, err)
		}
		t.CreatedAt, t.UpdatedAt = now, now
	}
	return tx.Commit()
}

type taskRecord struct {
	ID                 uuid.UUID `db:"id"`
	TaskKey            string    `db:"task_key"`
	Title              string    `db:"title"`
	Goal               string    `db:"goal"`
	Phase              int       `db:"phase"`
	Sequence           int       `db:"sequence"`
	SpecID             string    `db:"spec_id"`
	TestFile           string    `db:"test_file"`
	ImplFile           string    `db:"impl_file"`
	VerifyCommand      string    `db:"verify_command"`
	DoneCriteria       string    `db:"done_criteria"`
	AcceptanceCriteria []byte    `db:"acceptance_criteria"`
	ModuleExports      []byte    `db:"module_exports"`
	DependsOn          []byte    `db:"depends_on"`
	Status             string    `db:"status"`
	ClaimedBy          *string   `db:"claimed_by"`
	ClaimedAt          *time.Time `db:"claimed_at"`
	ClaimExpiresAt     *time.Time `db:"claim_expires_at"`
	Version            int        `db:"version"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (r *taskRecord) toDomain() *domain.Task {
	var acc, exp, dep []string
	_ = json.Unmarshal(r.AcceptanceCriteria, &acc)
	_ = json.Unmarshal(r.ModuleExports, &exp)
	_ = json.Unmarshal(r.DependsOn, &dep)
	return &domain.Task{
		ID: r.ID, TaskKey: r.TaskKey, Title: r.Title, Goal: r.Goal,
		Phase: r.Phase, Sequence: r.Sequence, SpecID: r.SpecID,
		TestFile: r.TestFile, ImplFile: r.ImplFile, VerifyCommand: r.VerifyCommand,
		DoneCriteria: r.DoneCriteria, AcceptanceCriteria: acc, ModuleExports: exp,
		DependsOn: dep, Status: domain.TaskStatus(r.Status), ClaimedBy: r.ClaimedBy,
		ClaimedAt: r.ClaimedAt, ClaimExpiresAt: r.ClaimExpiresAt, Version: r.Version,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) GetTask(ctx context.Context, taskKey string) (*domain.Task, error) {
	var r taskRecord
	err := s.db.GetContext(ctx, &r, `SELECT * FROM tasks WHERE task_key = $1`, taskKey)
	if errors.Is(err, sqlErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) GetTaskByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var r taskRecord
	err := s.db.GetContext(ctx, &r, `SELECT * FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sqlErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argN := 0
	next := func(v any) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}
	if filter.Status != "" {
		where += " AND status = " + next(filter.Status)
	}
	if filter.Phase != nil {
		where += " AND phase = " + next(*filter.Phase)
	}
	var total int
	countQuery := "SELECT count(*) FROM tasks " + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	limitArg := next(filter.Limit)
	offsetArg := next(filter.Offset)
	query := fmt.Sprintf("SELECT * FROM tasks %s ORDER BY phase ASC, sequence ASC LIMIT %s OFFSET %s", where, limitArg, offsetArg)
	var rows []taskRecord
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	out := make([]*domain.Task, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, total, nil
}

// NextReadyTask mirrors the original's get_claimable_tasks query
// against v_claimable_tasks: pending, unclaimed-or-expired, ordered by
// (phase, sequence). Dependency satisfaction against the opaque
// depends_on JSON array is evaluated in Go, same as gormstore.
func (s *Store) NextReadyTask(ctx context.Context) (*domain.Task, error) {
	statuses, err := s.SnapshotStatuses(ctx)
	if err != nil {
		return nil, err
	}
	var rows []taskRecord
	err = s.db.SelectContext(ctx, &rows, `
		SELECT * FROM tasks
		WHERE status = $1 AND (claimed_by IS NULL OR claim_expires_at < now())
		ORDER BY phase ASC, sequence ASC`, string(domain.TaskPending))
	if err != nil {
		return nil, err
	}
	for i := range rows {
		t := rows[i].toDomain()
		if t.Ready(statuses) {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

// ClaimTask: single atomic conditional UPDATE, SKIP LOCKED via
// row-level lock implied by the WHERE + RETURNING in one statement
// (postgres evaluates and locks the row it updates). Zero rows
// affected means the race was lost; the caller retries against the
// next ready task (spec §4.1, database.py claim_task).
func (s *Store) ClaimTask(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	expires := now.Add(lease)
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			claimed_by = $1, claimed_at = $2, claim_expires_at = $3,
			status = $4, version = version + 1, updated_at = $2
		WHERE id = $5 AND status = $6
			AND (claimed_by IS NULL OR claim_expires_at < $2)`,
		workerID, now, expires, string(domain.TaskInProgress), taskID, string(domain.TaskPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_claims (id, task_id, worker_id, claimed_at)
		VALUES ($1, $2, $3, $4)`, uuid.New(), taskID, workerID, now)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) ReleaseTask(ctx context.Context, taskID uuid.UUID, workerID string, outcome domain.ClaimOutcome) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET claimed_by = NULL, claimed_at = NULL, claim_expires_at = NULL, updated_at = $1
		WHERE id = $2 AND claimed_by = $3`, time.Now().UTC(), taskID, workerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrClaimLost
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE task_claims SET released_at = $1, outcome = $2
		WHERE task_id = $3 AND worker_id = $4 AND released_at IS NULL`,
		time.Now().UTC(), string(outcome), taskID, workerID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReclaimStale(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, claimed_by = NULL, claimed_at = NULL,
			claim_expires_at = NULL, updated_at = $2
		WHERE status = $3 AND claim_expires_at < $2`,
		string(domain.TaskPending), now, string(domain.TaskInProgress))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// errRetryNotRetryable is returned when RetryTask is called on a task
// that isn't in a retryable failure state (blocked,
// blocked-static-review) — including in_progress, passing, and
// complete, none of which should be silently re-queued.
var errRetryNotRetryable = errors.New("task is not in a retryable failure state")

func (s *Store) RetryTask(ctx context.Context, taskKey string) (*domain.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var r taskRecord
	if err := tx.GetContext(ctx, &r, `SELECT * FROM tasks WHERE task_key = $1`, taskKey); err != nil {
		if errors.Is(err, sqlErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if r.Status != string(domain.TaskBlocked) && r.Status != string(domain.TaskBlockedStaticReview) {
		return nil, fmt.Errorf("postgres: retry task %s: %w", taskKey, errRetryNotRetryable)
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $1, claimed_by = NULL, claimed_at = NULL,
			claim_expires_at = NULL, version = version + 1, updated_at = $2
		WHERE id = $3`, string(domain.TaskPending), now, r.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	r.Status = string(domain.TaskPending)
	return r.toDomain(), nil
}

func (s *Store) TaskStats(ctx context.Context) (store.TaskStats, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, count(*) as n FROM tasks GROUP BY status`); err != nil {
		return store.TaskStats{}, err
	}
	var stats store.TaskStats
	for _, r := range rows {
		stats.Total += r.N
		switch domain.TaskStatus(r.Status) {
		case domain.TaskPending:
			stats.Pending += r.N
		case domain.TaskInProgress:
			stats.Running += r.N
		case domain.TaskPassing, domain.TaskComplete:
			stats.Passed += r.N
		case domain.TaskBlocked, domain.TaskBlockedStaticReview:
			stats.Failed += r.N
		}
	}
	return stats, nil
}

func (s *Store) TaskProgress(ctx context.Context) (map[string]float64, error) {
	var rows []taskRecord
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks`); err != nil {
		return nil, err
	}
	totals := map[int]int{}
	passing := map[int]int{}
	for _, r := range rows {
		totals[r.Phase]++
		if domain.TaskStatus(r.Status) == domain.TaskPassing {
			passing[r.Phase]++
		}
	}
	out := make(map[string]float64, len(totals))
	for phase, total := range totals {
		key := fmt.Sprintf("phase_%d", phase)
		if total == 0 {
			out[key] = 0
			continue
		}
		out[key] = 100 * float64(passing[phase]) / float64(total)
	}
	return out, nil
}

func (s *Store) SnapshotStatuses(ctx context.Context) (map[string]domain.TaskStatus, error) {
	var rows []struct {
		TaskKey string `db:"task_key"`
		Status  string `db:"status"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT task_key, status FROM tasks`); err != nil {
		return nil, err
	}
	out := make(map[string]domain.TaskStatus, len(rows))
	for _, r := range rows {
		out[r.TaskKey] = domain.TaskStatus(r.Status)
	}
	return out, nil
}

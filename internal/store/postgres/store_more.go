package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

var sqlErrNoRows = sql.ErrNoRows

// --- Attempts ----------------------------------------------------------

func (s *Store) NextAttemptNumber(ctx context.Context, taskID uuid.UUID, stage domain.Stage) (int, error) {
	var max int
	err := s.db.GetContext(ctx, &max, `
		SELECT COALESCE(MAX(attempt_number), 0) FROM attempts WHERE task_id = $1 AND stage = $2`,
		taskID, string(stage))
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *Store) RecordAttempt(ctx context.Context, a *domain.Attempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, task_id, stage, attempt_number, success, error_message,
			exit_code, output, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.TaskID, string(a.Stage), a.AttemptNumber, a.Success, a.ErrorMessage,
		a.ExitCode, a.Output, a.StartedAt, a.CompletedAt)
	return err
}

func (s *Store) ListAttempts(ctx context.Context, taskID uuid.UUID) ([]*domain.Attempt, error) {
	var rows []struct {
		ID            uuid.UUID `db:"id"`
		TaskID        uuid.UUID `db:"task_id"`
		Stage         string    `db:"stage"`
		AttemptNumber int       `db:"attempt_number"`
		Success       bool      `db:"success"`
		ErrorMessage  string    `db:"error_message"`
		ExitCode      int       `db:"exit_code"`
		Output        string    `db:"output"`
		StartedAt     time.Time `db:"started_at"`
		CompletedAt   time.Time `db:"completed_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM attempts WHERE task_id = $1 ORDER BY started_at ASC`, taskID); err != nil {
		return nil, err
	}
	out := make([]*domain.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Attempt{
			ID: r.ID, TaskID: r.TaskID, Stage: domain.Stage(r.Stage),
			AttemptNumber: r.AttemptNumber, Success: r.Success, ErrorMessage: r.ErrorMessage,
			ExitCode: r.ExitCode, Output: r.Output, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

// --- Workers -------------------------------------------------------------

func (s *Store) RegisterWorker(ctx context.Context, w *domain.Worker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, status, current_task_id, branch_name, last_heartbeat)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, current_task_id = EXCLUDED.current_task_id,
			branch_name = EXCLUDED.branch_name, last_heartbeat = EXCLUDED.last_heartbeat`,
		w.ID, string(w.Status), w.CurrentTaskID, w.BranchName, time.Now().UTC())
	return err
}

func (s *Store) Heartbeat(ctx context.Context, workerID string, taskID *uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workers SET current_task_id = $1, last_heartbeat = $2 WHERE id = $3`,
		taskID, time.Now().UTC(), workerID)
	return err
}

func (s *Store) DeregisterWorker(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workers WHERE id = $1`, workerID)
	return err
}

func (s *Store) ListWorkers(ctx context.Context) ([]*domain.Worker, error) {
	var rows []struct {
		ID            string     `db:"id"`
		Status        string     `db:"status"`
		CurrentTaskID *uuid.UUID `db:"current_task_id"`
		BranchName    string     `db:"branch_name"`
		LastHeartbeat time.Time  `db:"last_heartbeat"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM workers`); err != nil {
		return nil, err
	}
	out := make([]*domain.Worker, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Worker{
			ID: r.ID, Status: domain.WorkerStatus(r.Status), CurrentTaskID: r.CurrentTaskID,
			BranchName: r.BranchName, LastHeartbeat: r.LastHeartbeat,
		})
	}
	return out, nil
}

// --- Circuits --------------------------------------------------------------

type circuitRecord struct {
	ID                uuid.UUID  `db:"id"`
	Level             string     `db:"level"`
	Identifier        string     `db:"identifier"`
	State             string     `db:"state"`
	Version           int        `db:"version"`
	FailureCount      int        `db:"failure_count"`
	SuccessCount      int        `db:"success_count"`
	HalfOpenRequests  int        `db:"half_open_requests"`
	ExtensionsCount   int        `db:"extensions_count"`
	OpenedAt          *time.Time `db:"opened_at"`
	LastFailureAt     *time.Time `db:"last_failure_at"`
	LastSuccessAt     *time.Time `db:"last_success_at"`
	LastStateChangeAt time.Time  `db:"last_state_change_at"`
	RunID             *uuid.UUID `db:"run_id"`
	ConfigSnapshot    []byte     `db:"config_snapshot"`
}

func (r *circuitRecord) toDomain() *domain.CircuitBreaker {
	return &domain.CircuitBreaker{
		ID: r.ID, Level: domain.CircuitLevel(r.Level), Identifier: r.Identifier,
		State: domain.CircuitState(r.State), Version: r.Version, FailureCount: r.FailureCount,
		SuccessCount: r.SuccessCount, HalfOpenRequests: r.HalfOpenRequests,
		ExtensionsCount: r.ExtensionsCount, OpenedAt: r.OpenedAt, LastFailureAt: r.LastFailureAt,
		LastSuccessAt: r.LastSuccessAt, LastStateChangeAt: r.LastStateChangeAt,
		RunID: r.RunID, ConfigSnapshot: r.ConfigSnapshot,
	}
}

func (s *Store) GetCircuit(ctx context.Context, level domain.CircuitLevel, identifier string) (*domain.CircuitBreaker, error) {
	var r circuitRecord
	err := s.db.GetContext(ctx, &r, `SELECT * FROM circuit_breakers WHERE level = $1 AND identifier = $2`,
		string(level), identifier)
	if errors.Is(err, sqlErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) CreateCircuit(ctx context.Context, level domain.CircuitLevel, identifier string, runID *uuid.UUID, configSnapshot []byte) (*domain.CircuitBreaker, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuit_breakers (id, level, identifier, state, version,
			last_state_change_at, run_id, config_snapshot)
		VALUES ($1,$2,$3,$4,1,$5,$6,$7)`,
		id, string(level), identifier, string(domain.CircuitClosed), now, runID, configSnapshot)
	if err != nil {
		return nil, err
	}
	return s.GetCircuit(ctx, level, identifier)
}

// UpdateCircuit: single optimistic-locked UPDATE guarded by id AND
// version = expectedVersion (mirrors gormstore.UpdateCircuit and the
// claim_task conditional-update shape it reuses, SPEC_FULL §4.1).
func (s *Store) UpdateCircuit(ctx context.Context, id uuid.UUID, expectedVersion int, fields store.CircuitFields) (bool, error) {
	cur, err := s.getCircuitByID(ctx, id)
	if err != nil {
		return false, err
	}
	failureCount := cur.FailureCount
	if fields.FailureCount != nil {
		failureCount = *fields.FailureCount
	}
	successCount := cur.SuccessCount
	if fields.SuccessCount != nil {
		successCount = *fields.SuccessCount
	}
	halfOpen := cur.HalfOpenRequests
	if fields.HalfOpenRequests != nil {
		halfOpen = *fields.HalfOpenRequests
	}
	extensions := cur.ExtensionsCount
	if fields.ExtensionsCount != nil {
		extensions = *fields.ExtensionsCount
	}
	openedAt := cur.OpenedAt
	if fields.ClearOpenedAt {
		openedAt = nil
	} else if fields.OpenedAt != nil {
		openedAt = fields.OpenedAt
	}
	lastFailureAt := cur.LastFailureAt
	if fields.LastFailureAt != nil {
		lastFailureAt = fields.LastFailureAt
	}
	lastSuccessAt := cur.LastSuccessAt
	if fields.LastSuccessAt != nil {
		lastSuccessAt = fields.LastSuccessAt
	}
	configSnapshot := cur.ConfigSnapshot
	if fields.ConfigSnapshot != nil {
		configSnapshot = fields.ConfigSnapshot
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE circuit_breakers SET
			state = $1, version = version + 1, failure_count = $2, success_count = $3,
			half_open_requests = $4, extensions_count = $5, opened_at = $6,
			last_failure_at = $7, last_success_at = $8, last_state_change_at = $9,
			config_snapshot = $10
		WHERE id = $11 AND version = $12`,
		string(fields.State), failureCount, successCount, halfOpen, extensions, openedAt,
		lastFailureAt, lastSuccessAt, time.Now().UTC(), configSnapshot, id, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) getCircuitByID(ctx context.Context, id uuid.UUID) (*domain.CircuitBreaker, error) {
	var r circuitRecord
	err := s.db.GetContext(ctx, &r, `SELECT * FROM circuit_breakers WHERE id = $1`, id)
	if errors.Is(err, sqlErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) RecordCircuitEvent(ctx context.Context, ev *domain.CircuitBreakerEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuit_breaker_events (id, circuit_id, run_id, event_type,
			from_state, to_state, error_context, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ev.ID, ev.CircuitID, ev.RunID, string(ev.EventType), string(ev.FromState),
		string(ev.ToState), ev.ErrorContext, ev.Timestamp)
	return err
}

func (s *Store) ListCircuits(ctx context.Context, level string, state string) ([]*domain.CircuitBreaker, error) {
	query := "SELECT * FROM circuit_breakers WHERE 1=1"
	var args []any
	argN := 0
	if level != "" {
		argN++
		query += " AND level = $" + strconv.Itoa(argN)
		args = append(args, level)
	}
	if state != "" {
		argN++
		query += " AND state = $" + strconv.Itoa(argN)
		args = append(args, state)
	}
	var rows []circuitRecord
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*domain.CircuitBreaker, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) ListOpenCircuits(ctx context.Context) ([]*domain.CircuitBreaker, error) {
	return s.ListCircuits(ctx, "", string(domain.CircuitOpen))
}

// --- Runs --------------------------------------------------------------

func (s *Store) CreateRun(ctx context.Context, maxWorkers int) (*domain.ExecutionRun, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_runs (id, started_at, status, max_workers, total_invocations)
		VALUES ($1,$2,$3,$4,0)`, id, now, string(domain.RunRunning), maxWorkers)
	if err != nil {
		return nil, err
	}
	return &domain.ExecutionRun{ID: id, StartedAt: now, Status: domain.RunRunning, MaxWorkers: maxWorkers}, nil
}

func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_runs SET status = $1, completed_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
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

type runRecord struct {
	ID               uuid.UUID  `db:"id"`
	StartedAt        time.Time  `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	Status           string     `db:"status"`
	MaxWorkers       int        `db:"max_workers"`
	TotalInvocations int        `db:"total_invocations"`
}

func (r *runRecord) toDomain() *domain.ExecutionRun {
	return &domain.ExecutionRun{
		ID: r.ID, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
		Status: domain.RunStatus(r.Status), MaxWorkers: r.MaxWorkers, TotalInvocations: r.TotalInvocations,
	}
}

func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*domain.ExecutionRun, error) {
	var r runRecord
	err := s.db.GetContext(ctx, &r, `SELECT * FROM execution_runs WHERE id = $1`, runID)
	if errors.Is(err, sqlErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*domain.ExecutionRun, error) {
	var rows []runRecord
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM execution_runs ORDER BY started_at DESC`); err != nil {
		return nil, err
	}
	out := make([]*domain.ExecutionRun, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) CurrentRun(ctx context.Context) (*domain.ExecutionRun, error) {
	var r runRecord
	err := s.db.GetContext(ctx, &r, `
		SELECT * FROM execution_runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1`,
		string(domain.RunRunning))
	if errors.Is(err, sqlErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) IncrementInvocations(ctx context.Context, runID uuid.UUID, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE execution_runs SET total_invocations = total_invocations + $1 WHERE id = $2`, delta, runID)
	return err
}

// --- Config --------------------------------------------------------------

func (s *Store) GetConfig(ctx context.Context, key domain.ConfigKey) (int, bool, error) {
	var value int
	err := s.db.GetContext(ctx, &value, `SELECT value FROM config WHERE key = $1`, string(key))
	if errors.Is(err, sqlErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key domain.ConfigKey, value int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, string(key), value)
	return err
}

// --- Static review + git stash audit --------------------------------------

func (s *Store) RecordStaticReviewMetric(ctx context.Context, m *domain.StaticReviewMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO static_review_metrics (id, task_id, metric_name, value, threshold, passed, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.TaskID, m.MetricName, m.Value, m.Threshold, m.Passed, m.RecordedAt)
	return err
}

func (s *Store) ListStaticReviewMetrics(ctx context.Context, taskID uuid.UUID) ([]*domain.StaticReviewMetric, error) {
	var rows []struct {
		ID         uuid.UUID `db:"id"`
		TaskID     uuid.UUID `db:"task_id"`
		MetricName string    `db:"metric_name"`
		Value      float64   `db:"value"`
		Threshold  float64   `db:"threshold"`
		Passed     bool      `db:"passed"`
		RecordedAt time.Time `db:"recorded_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM static_review_metrics WHERE task_id = $1 ORDER BY recorded_at ASC`, taskID); err != nil {
		return nil, err
	}
	out := make([]*domain.StaticReviewMetric, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.StaticReviewMetric{
			ID: r.ID, TaskID: r.TaskID, MetricName: r.MetricName, Value: r.Value,
			Threshold: r.Threshold, Passed: r.Passed, RecordedAt: r.RecordedAt,
		})
	}
	return out, nil
}

func (s *Store) RecordGitStash(ctx context.Context, e *domain.GitStashLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_stash_log (id, task_id, stash_ref, reason, restored, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, e.ID, e.TaskID, e.StashRef, e.Reason, e.Restored, e.CreatedAt)
	return err
}

// ShadowSummaryForTask reads v_shadow_mode_summary (spec.md §6). No
// writer populates shadow-mode rows in this module, so this always
// returns an empty slice — see domain.ShadowModeEntry's doc comment.
func (s *Store) ShadowSummaryForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.ShadowModeEntry, error) {
	return []*domain.ShadowModeEntry{}, nil
}

var _ store.Store = (*Store)(nil)

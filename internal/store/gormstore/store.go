package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// Store is the GORM-backed store.Store implementation. It is the
// default used by cmd/orchestrator for both the sqlite dev/test path
// and the postgres production path — same models, different dialect.
type Store struct {
	db *gorm.DB
}

// OpenSQLite opens (and, for dev/test convenience, migrates) a sqlite
// database at path. Use ":memory:" for ephemeral test stores.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open sqlite: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("gormstore: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenPostgres opens a postgres database at dsn. Schema is expected to
// already be applied via store/migrations (goose); AutoMigrate is not
// run here so that production schema changes stay goose-reviewed.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Tasks / queue ---------------------------------------------------

func (s *Store) InsertTasks(ctx context.Context, tasks []*domain.Task) error {
	rows := make([]*taskRow, 0, len(tasks))
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
		t.CreatedAt, t.UpdatedAt = now, now
		rows = append(rows, rowFromTask(t))
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *Store) GetTask(ctx context.Context, taskKey string) (*domain.Task, error) {
	var r taskRow
	if err := s.db.WithContext(ctx).Where("task_key = ?", taskKey).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return taskFromRow(&r), nil
}

func (s *Store) GetTaskByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var r taskRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return taskFromRow(&r), nil
}

func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	q := s.db.WithContext(ctx).Model(&taskRow{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Phase != nil {
		q = q.Where("phase = ?", *filter.Phase)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	var rows []taskRow
	if err := q.Order("phase asc, sequence asc").Limit(filter.Limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*domain.Task, 0, len(rows))
	for i := range rows {
		out = append(out, taskFromRow(&rows[i]))
	}
	return out, int(total), nil
}

// NextReadyTask mirrors the original's get_claimable_tasks(phase=None)
// against the v_claimable_tasks view: pending tasks whose dependencies
// are all satisfied, ordered by (phase, sequence), unclaimed or with
// an expired claim. Dependency satisfaction is evaluated in Go against
// a snapshot rather than a SQL view, since depends_on is stored as an
// opaque JSON array (spec §9 DESIGN NOTES).
func (s *Store) NextReadyTask(ctx context.Context) (*domain.Task, error) {
	statuses, err := s.SnapshotStatuses(ctx)
	if err != nil {
		return nil, err
	}
	var rows []taskRow
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Where("status = ?", string(domain.TaskPending)).
		Where("claimed_by IS NULL OR claim_expires_at < ?", now).
		Order("phase asc, sequence asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		t := taskFromRow(&rows[i])
		if t.Ready(statuses) {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

// ClaimTask implements the original's claim_task: an atomic
// conditional UPDATE guarded by status='pending' AND (claimed_by IS
// NULL OR claim_expires_at < now). Zero rows affected means another
// worker won the race; the caller re-reads and retries (spec §4.1,
// §8 "no double-claim").
func (s *Store) ClaimTask(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) (bool, error) {
	now := time.Now().UTC()
	expires := now.Add(lease)
	ok := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskRow{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id = ?", taskID).
			Where("status = ?", string(domain.TaskPending)).
			Where("claimed_by IS NULL OR claim_expires_at < ?", now).
			Updates(map[string]any{
				"claimed_by":       workerID,
				"claimed_at":       now,
				"claim_expires_at": expires,
				"status":           string(domain.TaskInProgress),
				"version":          gorm.Expr("version + 1"),
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		ok = true
		claim := &taskClaimRow{
			ID:        uuid.New(),
			TaskID:    taskID,
			WorkerID:  workerID,
			ClaimedAt: now,
		}
		return tx.Create(claim).Error
	})
	return ok, err
}

// ReleaseTask mirrors the original's release_task: clears the claim
// columns and marks the most recent open task_claims row for
// (taskID, workerID) as released with outcome.
func (s *Store) ReleaseTask(ctx context.Context, taskID uuid.UUID, workerID string, outcome domain.ClaimOutcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskRow{}).
			Where("id = ? AND claimed_by = ?", taskID, workerID).
			Updates(map[string]any{
				"claimed_by":       nil,
				"claimed_at":       nil,
				"claim_expires_at": nil,
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrClaimLost
		}
		out := string(outcome)
		return tx.Model(&taskClaimRow{}).
			Where("task_id = ? AND worker_id = ? AND released_at IS NULL", taskID, workerID).
			Updates(map[string]any{
				"released_at": time.Now().UTC(),
				"outcome":     out,
			}).Error
	})
}

// ReclaimStale sweeps in_progress tasks whose claim_expires_at has
// passed back to pending, for the worker pool's stale-claim reaper
// (spec §7 "Worker crash mid-task").
func (s *Store) ReclaimStale(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&taskRow{}).
		Where("status = ?", string(domain.TaskInProgress)).
		Where("claim_expires_at < ?", now).
		Updates(map[string]any{
			"status":           string(domain.TaskPending),
			"claimed_by":       nil,
			"claimed_at":       nil,
			"claim_expires_at": nil,
			"updated_at":       now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) error {
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", taskID).Updates(map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RetryTask resets a blocked task back to pending, clearing any stale
// claim (spec §6 POST /tasks/{task_key}/retry). Only tasks in a
// retryable failure state (blocked, blocked-static-review) qualify;
// every other status — including in_progress, passing, and complete —
// returns a conflict rather than silently re-queuing work that isn't
// a failure.
func (s *Store) RetryTask(ctx context.Context, taskKey string) (*domain.Task, error) {
	var out *domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r taskRow
		if err := tx.Where("task_key = ?", taskKey).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return err
		}
		if r.Status != string(domain.TaskBlocked) && r.Status != string(domain.TaskBlockedStaticReview) {
			return fmt.Errorf("gormstore: retry task %s: %w", taskKey, errRetryNotRetryable)
		}
		now := time.Now().UTC()
		if err := tx.Model(&r).Updates(map[string]any{
			"status":           string(domain.TaskPending),
			"claimed_by":       nil,
			"claimed_at":       nil,
			"claim_expires_at": nil,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       now,
		}).Error; err != nil {
			return err
		}
		r.Status = string(domain.TaskPending)
		out = taskFromRow(&r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var errRetryNotRetryable = errors.New("task is not in a retryable failure state")

func (s *Store) TaskStats(ctx context.Context) (store.TaskStats, error) {
	var rows []struct {
		Status string
		N      int
	}
	if err := s.db.WithContext(ctx).Model(&taskRow{}).
		Select("status, count(*) as n").Group("status").Scan(&rows).Error; err != nil {
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

// TaskProgress returns a per-phase percentage of tasks counted as
// "done" toward completion. Only "passing" counts toward this
// percentage; "complete" satisfies dependency edges but is the
// terminal state reached after "passing", not a distinct progress
// bucket (spec §9 open question #1 decision, recorded in SPEC_FULL.md).
func (s *Store) TaskProgress(ctx context.Context) (map[string]float64, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
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
	var rows []taskRow
	if err := s.db.WithContext(ctx).Select("task_key", "status").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.TaskStatus, len(rows))
	for _, r := range rows {
		out[r.TaskKey] = domain.TaskStatus(r.Status)
	}
	return out, nil
}

// --- Attempts ----------------------------------------------------------

func (s *Store) NextAttemptNumber(ctx context.Context, taskID uuid.UUID, stage domain.Stage) (int, error) {
	var max int
	err := s.db.WithContext(ctx).Model(&attemptRow{}).
		Where("task_id = ? AND stage = ?", taskID, string(stage)).
		Select("COALESCE(MAX(attempt_number), 0)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *Store) RecordAttempt(ctx context.Context, a *domain.Attempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := &attemptRow{
		ID:            a.ID,
		TaskID:        a.TaskID,
		Stage:         string(a.Stage),
		AttemptNumber: a.AttemptNumber,
		Success:       a.Success,
		ErrorMessage:  a.ErrorMessage,
		ExitCode:      a.ExitCode,
		Output:        a.Output,
		StartedAt:     a.StartedAt,
		CompletedAt:   a.CompletedAt,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) ListAttempts(ctx context.Context, taskID uuid.UUID) ([]*domain.Attempt, error) {
	var rows []attemptRow
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("started_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Attempt{
			ID:            r.ID,
			TaskID:        r.TaskID,
			Stage:         domain.Stage(r.Stage),
			AttemptNumber: r.AttemptNumber,
			Success:       r.Success,
			ErrorMessage:  r.ErrorMessage,
			ExitCode:      r.ExitCode,
			Output:        r.Output,
			StartedAt:     r.StartedAt,
			CompletedAt:   r.CompletedAt,
		})
	}
	return out, nil
}

// --- Workers -------------------------------------------------------------

func (s *Store) RegisterWorker(ctx context.Context, w *domain.Worker) error {
	row := &workerRow{
		ID:            w.ID,
		Status:        string(w.Status),
		CurrentTaskID: w.CurrentTaskID,
		BranchName:    w.BranchName,
		LastHeartbeat: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "current_task_id", "branch_name", "last_heartbeat"}),
	}).Create(row).Error
}

func (s *Store) Heartbeat(ctx context.Context, workerID string, taskID *uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&workerRow{}).Where("id = ?", workerID).Updates(map[string]any{
		"current_task_id": taskID,
		"last_heartbeat":  time.Now().UTC(),
	}).Error
}

func (s *Store) DeregisterWorker(ctx context.Context, workerID string) error {
	return s.db.WithContext(ctx).Where("id = ?", workerID).Delete(&workerRow{}).Error
}

func (s *Store) ListWorkers(ctx context.Context) ([]*domain.Worker, error) {
	var rows []workerRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Worker, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Worker{
			ID:            r.ID,
			Status:        domain.WorkerStatus(r.Status),
			CurrentTaskID: r.CurrentTaskID,
			BranchName:    r.BranchName,
			LastHeartbeat: r.LastHeartbeat,
		})
	}
	return out, nil
}

// --- Circuits --------------------------------------------------------------

func (s *Store) GetCircuit(ctx context.Context, level domain.CircuitLevel, identifier string) (*domain.CircuitBreaker, error) {
	var r circuitRow
	err := s.db.WithContext(ctx).Where("level = ? AND identifier = ?", string(level), identifier).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return circuitFromRow(&r), nil
}

func (s *Store) CreateCircuit(ctx context.Context, level domain.CircuitLevel, identifier string, runID *uuid.UUID, configSnapshot []byte) (*domain.CircuitBreaker, error) {
	now := time.Now().UTC()
	row := &circuitRow{
		ID:                uuid.New(),
		Level:             string(level),
		Identifier:        identifier,
		State:             string(domain.CircuitClosed),
		Version:           1,
		LastStateChangeAt: now,
		RunID:             runID,
		ConfigSnapshot:    configSnapshot,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return circuitFromRow(row), nil
}

// UpdateCircuit applies fields as a single optimistic-locked UPDATE
// guarded by id AND version=expectedVersion, mirroring ClaimTask's
// conditional-update pattern for the circuit hierarchy's row (spec
// §4.1 "reuses the claim_task optimistic-update shape"). Zero rows
// affected means the in-memory circuit's view was stale.
func (s *Store) UpdateCircuit(ctx context.Context, id uuid.UUID, expectedVersion int, fields store.CircuitFields) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"state":               string(fields.State),
		"version":             gorm.Expr("version + 1"),
		"last_state_change_at": now,
	}
	if fields.FailureCount != nil {
		updates["failure_count"] = *fields.FailureCount
	}
	if fields.SuccessCount != nil {
		updates["success_count"] = *fields.SuccessCount
	}
	if fields.HalfOpenRequests != nil {
		updates["half_open_requests"] = *fields.HalfOpenRequests
	}
	if fields.ExtensionsCount != nil {
		updates["extensions_count"] = *fields.ExtensionsCount
	}
	if fields.ClearOpenedAt {
		updates["opened_at"] = nil
	} else if fields.OpenedAt != nil {
		updates["opened_at"] = *fields.OpenedAt
	}
	if fields.LastFailureAt != nil {
		updates["last_failure_at"] = *fields.LastFailureAt
	}
	if fields.LastSuccessAt != nil {
		updates["last_success_at"] = *fields.LastSuccessAt
	}
	if fields.ConfigSnapshot != nil {
		updates["config_snapshot"] = fields.ConfigSnapshot
	}
	res := s.db.WithContext(ctx).Model(&circuitRow{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RecordCircuitEvent(ctx context.Context, ev *domain.CircuitBreakerEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	row := &circuitEventRow{
		ID:           ev.ID,
		CircuitID:    ev.CircuitID,
		RunID:        ev.RunID,
		EventType:    string(ev.EventType),
		FromState:    string(ev.FromState),
		ToState:      string(ev.ToState),
		ErrorContext: ev.ErrorContext,
		Timestamp:    ev.Timestamp,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) ListCircuits(ctx context.Context, level string, state string) ([]*domain.CircuitBreaker, error) {
	q := s.db.WithContext(ctx).Model(&circuitRow{})
	if level != "" {
		q = q.Where("level = ?", level)
	}
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var rows []circuitRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.CircuitBreaker, 0, len(rows))
	for i := range rows {
		out = append(out, circuitFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) ListOpenCircuits(ctx context.Context) ([]*domain.CircuitBreaker, error) {
	return s.ListCircuits(ctx, "", string(domain.CircuitOpen))
}

func circuitFromRow(r *circuitRow) *domain.CircuitBreaker {
	return &domain.CircuitBreaker{
		ID:                r.ID,
		Level:             domain.CircuitLevel(r.Level),
		Identifier:        r.Identifier,
		State:             domain.CircuitState(r.State),
		Version:           r.Version,
		FailureCount:      r.FailureCount,
		SuccessCount:      r.SuccessCount,
		HalfOpenRequests:  r.HalfOpenRequests,
		ExtensionsCount:   r.ExtensionsCount,
		OpenedAt:          r.OpenedAt,
		LastFailureAt:     r.LastFailureAt,
		LastSuccessAt:     r.LastSuccessAt,
		LastStateChangeAt: r.LastStateChangeAt,
		RunID:             r.RunID,
		ConfigSnapshot:    []byte(r.ConfigSnapshot),
	}
}

// --- Runs --------------------------------------------------------------

func (s *Store) CreateRun(ctx context.Context, maxWorkers int) (*domain.ExecutionRun, error) {
	row := &executionRunRow{
		ID:         uuid.New(),
		StartedAt:  time.Now().UTC(),
		Status:     string(domain.RunRunning),
		MaxWorkers: maxWorkers,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return runFromRow(row), nil
}

func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, status domain.RunStatus) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&executionRunRow{}).Where("id = ?", runID).Updates(map[string]any{
		"status":       string(status),
		"completed_at": now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*domain.ExecutionRun, error) {
	var r executionRunRow
	if err := s.db.WithContext(ctx).Where("id = ?", runID).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return runFromRow(&r), nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*domain.ExecutionRun, error) {
	var rows []executionRunRow
	if err := s.db.WithContext(ctx).Order("started_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.ExecutionRun, 0, len(rows))
	for i := range rows {
		out = append(out, runFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) CurrentRun(ctx context.Context) (*domain.ExecutionRun, error) {
	var r executionRunRow
	err := s.db.WithContext(ctx).Where("status = ?", string(domain.RunRunning)).Order("started_at desc").First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return runFromRow(&r), nil
}

func (s *Store) IncrementInvocations(ctx context.Context, runID uuid.UUID, delta int) error {
	return s.db.WithContext(ctx).Model(&executionRunRow{}).Where("id = ?", runID).
		Update("total_invocations", gorm.Expr("total_invocations + ?", delta)).Error
}

func runFromRow(r *executionRunRow) *domain.ExecutionRun {
	return &domain.ExecutionRun{
		ID:               r.ID,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Status:           domain.RunStatus(r.Status),
		MaxWorkers:       r.MaxWorkers,
		TotalInvocations: r.TotalInvocations,
	}
}

// --- Config --------------------------------------------------------------

func (s *Store) GetConfig(ctx context.Context, key domain.ConfigKey) (int, bool, error) {
	var r configRow
	err := s.db.WithContext(ctx).Where("key = ?", string(key)).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return r.Value, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key domain.ConfigKey, value int) error {
	row := &configRow{Key: string(key), Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(row).Error
}

// --- Static review + git stash audit --------------------------------------

func (s *Store) RecordStaticReviewMetric(ctx context.Context, m *domain.StaticReviewMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	row := &staticReviewMetricRow{
		ID:         m.ID,
		TaskID:     m.TaskID,
		MetricName: m.MetricName,
		Value:      m.Value,
		Threshold:  m.Threshold,
		Passed:     m.Passed,
		RecordedAt: m.RecordedAt,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) ListStaticReviewMetrics(ctx context.Context, taskID uuid.UUID) ([]*domain.StaticReviewMetric, error) {
	var rows []staticReviewMetricRow
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("recorded_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.StaticReviewMetric, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.StaticReviewMetric{
			ID:         r.ID,
			TaskID:     r.TaskID,
			MetricName: r.MetricName,
			Value:      r.Value,
			Threshold:  r.Threshold,
			Passed:     r.Passed,
			RecordedAt: r.RecordedAt,
		})
	}
	return out, nil
}

func (s *Store) RecordGitStash(ctx context.Context, e *domain.GitStashLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := &gitStashLogRow{
		ID:        e.ID,
		TaskID:    e.TaskID,
		StashRef:  e.StashRef,
		Reason:    e.Reason,
		Restored:  e.Restored,
		CreatedAt: e.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// ShadowSummaryForTask reads v_shadow_mode_summary (spec.md §6). No
// writer populates shadow-mode rows in this module, so this always
// returns an empty slice — see domain.ShadowModeEntry's doc comment.
func (s *Store) ShadowSummaryForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.ShadowModeEntry, error) {
	return []*domain.ShadowModeEntry{}, nil
}

var _ store.Store = (*Store)(nil)

// Package gormstore is the default Store implementation, adapted from
// the teacher's GORM repo idiom (internal/data/repos/jobs/job_run.go):
// sqlite for dev/test, postgres in prod, behind the same store.Store
// interface as store/postgres.
package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

type taskRow struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskKey            string    `gorm:"uniqueIndex;not null"`
	Title              string
	Goal               string
	Phase              int    `gorm:"index"`
	Sequence           int    `gorm:"index"`
	SpecID             string
	TestFile           string
	ImplFile           string
	VerifyCommand      string
	DoneCriteria       string
	AcceptanceCriteria datatypes.JSON
	ModuleExports      datatypes.JSON
	DependsOn          datatypes.JSON
	Status             string `gorm:"index;not null"`
	ClaimedBy          *string
	ClaimedAt          *time.Time
	ClaimExpiresAt     *time.Time `gorm:"index"`
	Version            int        `gorm:"not null;default:1"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (taskRow) TableName() string { return "tasks" }

type attemptRow struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskID        uuid.UUID `gorm:"type:uuid;index;not null"`
	Stage         string    `gorm:"index;not null"`
	AttemptNumber int       `gorm:"not null"`
	Success       bool
	ErrorMessage  string
	ExitCode      int
	Output        string
	StartedAt     time.Time
	CompletedAt   time.Time
}

func (attemptRow) TableName() string { return "attempts" }

type workerRow struct {
	ID            string `gorm:"primaryKey"`
	Status        string
	CurrentTaskID *uuid.UUID `gorm:"type:uuid"`
	BranchName    string
	LastHeartbeat time.Time
}

func (workerRow) TableName() string { return "workers" }

type taskClaimRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskID     uuid.UUID `gorm:"type:uuid;index;not null"`
	WorkerID   string    `gorm:"index;not null"`
	ClaimedAt  time.Time
	ReleasedAt *time.Time
	Outcome    *string
}

func (taskClaimRow) TableName() string { return "task_claims" }

type circuitRow struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Level             string    `gorm:"index:idx_circuit_level_identifier,unique;not null"`
	Identifier        string    `gorm:"index:idx_circuit_level_identifier,unique;not null"`
	State             string    `gorm:"not null"`
	Version           int       `gorm:"not null;default:1"`
	FailureCount      int
	SuccessCount      int
	HalfOpenRequests  int
	ExtensionsCount   int
	OpenedAt          *time.Time
	LastFailureAt     *time.Time
	LastSuccessAt     *time.Time
	LastStateChangeAt time.Time
	RunID             *uuid.UUID `gorm:"type:uuid"`
	ConfigSnapshot    datatypes.JSON
}

func (circuitRow) TableName() string { return "circuit_breakers" }

type circuitEventRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CircuitID    uuid.UUID `gorm:"type:uuid;index;not null"`
	RunID        *uuid.UUID `gorm:"type:uuid"`
	EventType    string
	FromState    string
	ToState      string
	ErrorContext datatypes.JSON
	Timestamp    time.Time
}

func (circuitEventRow) TableName() string { return "circuit_breaker_events" }

type executionRunRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           string
	MaxWorkers       int
	TotalInvocations int
}

func (executionRunRow) TableName() string { return "execution_runs" }

type configRow struct {
	Key   string `gorm:"primaryKey"`
	Value int
}

func (configRow) TableName() string { return "config" }

type staticReviewMetricRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskID     uuid.UUID `gorm:"type:uuid;index;not null"`
	MetricName string
	Value      float64
	Threshold  float64
	Passed     bool
	RecordedAt time.Time
}

func (staticReviewMetricRow) TableName() string { return "static_review_metrics" }

type gitStashLogRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskID    uuid.UUID `gorm:"type:uuid;index;not null"`
	StashRef  string
	Reason    string
	Restored  bool
	CreatedAt time.Time
}

func (gitStashLogRow) TableName() string { return "git_stash_log" }

// AutoMigrate creates/updates the schema for every table spec.md §6
// names. Postgres deployments use the goose migrations in
// store/migrations instead; AutoMigrate backs the sqlite dev/test path
// (mirrors the teacher's pg.AutoMigrateAll()).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&taskRow{},
		&attemptRow{},
		&workerRow{},
		&taskClaimRow{},
		&circuitRow{},
		&circuitEventRow{},
		&executionRunRow{},
		&configRow{},
		&staticReviewMetricRow{},
		&gitStashLogRow{},
	)
}

func rowFromTask(t *domain.Task) *taskRow {
	accJSON, _ := jsonMarshal(t.AcceptanceCriteria)
	expJSON, _ := jsonMarshal(t.ModuleExports)
	depJSON, _ := jsonMarshal(t.DependsOn)
	return &taskRow{
		ID:                 t.ID,
		TaskKey:            t.TaskKey,
		Title:              t.Title,
		Goal:               t.Goal,
		Phase:              t.Phase,
		Sequence:           t.Sequence,
		SpecID:             t.SpecID,
		TestFile:           t.TestFile,
		ImplFile:           t.ImplFile,
		VerifyCommand:      t.VerifyCommand,
		DoneCriteria:       t.DoneCriteria,
		AcceptanceCriteria: accJSON,
		ModuleExports:      expJSON,
		DependsOn:          depJSON,
		Status:             string(t.Status),
		ClaimedBy:          t.ClaimedBy,
		ClaimedAt:          t.ClaimedAt,
		ClaimExpiresAt:     t.ClaimExpiresAt,
		Version:            t.Version,
	}
}

func taskFromRow(r *taskRow) *domain.Task {
	var acc, exp, dep []string
	_ = jsonUnmarshal(r.AcceptanceCriteria, &acc)
	_ = jsonUnmarshal(r.ModuleExports, &exp)
	_ = jsonUnmarshal(r.DependsOn, &dep)
	return &domain.Task{
		ID:                 r.ID,
		TaskKey:            r.TaskKey,
		Title:              r.Title,
		Goal:               r.Goal,
		Phase:              r.Phase,
		Sequence:           r.Sequence,
		SpecID:             r.SpecID,
		TestFile:           r.TestFile,
		ImplFile:           r.ImplFile,
		VerifyCommand:      r.VerifyCommand,
		DoneCriteria:       r.DoneCriteria,
		AcceptanceCriteria: acc,
		ModuleExports:      exp,
		DependsOn:          dep,
		Status:             domain.TaskStatus(r.Status),
		ClaimedBy:          r.ClaimedBy,
		ClaimedAt:          r.ClaimedAt,
		ClaimExpiresAt:     r.ClaimExpiresAt,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

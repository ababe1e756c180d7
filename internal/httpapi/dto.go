package httpapi

import (
	"encoding/json"
	"time"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

type taskDTO struct {
	TaskKey            string   `json:"task_key"`
	Title              string   `json:"title"`
	Goal               string   `json:"goal"`
	Phase              int      `json:"phase"`
	Sequence           int      `json:"sequence"`
	Status             string   `json:"status"`
	TestFile           string   `json:"test_file"`
	ImplFile           string   `json:"impl_file"`
	VerifyCommand      string   `json:"verify_command"`
	DoneCriteria       string   `json:"done_criteria"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	ModuleExports      []string `json:"module_exports"`
	DependsOn          []string `json:"depends_on"`
	ClaimedBy          *string  `json:"claimed_by,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

func toTaskDTO(t *domain.Task) taskDTO {
	return taskDTO{
		TaskKey:            t.TaskKey,
		Title:              t.Title,
		Goal:               t.Goal,
		Phase:              t.Phase,
		Sequence:           t.Sequence,
		Status:             string(t.Status),
		TestFile:           t.TestFile,
		ImplFile:           t.ImplFile,
		VerifyCommand:      t.VerifyCommand,
		DoneCriteria:       t.DoneCriteria,
		AcceptanceCriteria: t.AcceptanceCriteria,
		ModuleExports:      t.ModuleExports,
		DependsOn:          t.DependsOn,
		ClaimedBy:          t.ClaimedBy,
		CreatedAt:          t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          t.UpdatedAt.Format(time.RFC3339),
	}
}

type attemptDTO struct {
	Stage         string `json:"stage"`
	AttemptNumber int    `json:"attempt_number"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ExitCode      int    `json:"exit_code"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at"`
}

func toAttemptDTO(a *domain.Attempt) attemptDTO {
	return attemptDTO{
		Stage:         string(a.Stage),
		AttemptNumber: a.AttemptNumber,
		Success:       a.Success,
		ErrorMessage:  a.ErrorMessage,
		ExitCode:      a.ExitCode,
		StartedAt:     a.StartedAt.Format(time.RFC3339),
		CompletedAt:   a.CompletedAt.Format(time.RFC3339),
	}
}

type taskDetailDTO struct {
	taskDTO
	Attempts []attemptDTO `json:"attempts"`
}

type runDTO struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	MaxWorkers       int     `json:"max_workers"`
	TotalInvocations int     `json:"total_invocations"`
	StartedAt        string  `json:"started_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
}

func toRunDTO(r *domain.ExecutionRun) runDTO {
	out := runDTO{
		ID:               r.ID.String(),
		Status:           string(r.Status),
		MaxWorkers:       r.MaxWorkers,
		TotalInvocations: r.TotalInvocations,
		StartedAt:        r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		out.CompletedAt = &s
	}
	return out
}

type circuitDTO struct {
	ID           string          `json:"id"`
	Level        string          `json:"level"`
	Identifier   string          `json:"identifier"`
	State        string          `json:"state"`
	FailureCount int             `json:"failure_count"`
	SuccessCount int             `json:"success_count"`
	OpenedAt     *string         `json:"opened_at,omitempty"`
	ConfigSnapshot json.RawMessage `json:"config_snapshot,omitempty"`
}

func toCircuitDTO(c *domain.CircuitBreaker) circuitDTO {
	out := circuitDTO{
		ID:           c.ID.String(),
		Level:        string(c.Level),
		Identifier:   c.Identifier,
		State:        string(c.State),
		FailureCount: c.FailureCount,
		SuccessCount: c.SuccessCount,
	}
	if c.OpenedAt != nil {
		s := c.OpenedAt.Format(time.RFC3339)
		out.OpenedAt = &s
	}
	if len(c.ConfigSnapshot) > 0 {
		out.ConfigSnapshot = json.RawMessage(c.ConfigSnapshot)
	}
	return out
}

type shadowEntryDTO struct {
	Stage         string `json:"stage"`
	PrimaryResult bool   `json:"primary_result"`
	ShadowResult  bool   `json:"shadow_result"`
	Agreed        bool   `json:"agreed"`
	RecordedAt    string `json:"recorded_at"`
}

func toShadowEntryDTO(e *domain.ShadowModeEntry) shadowEntryDTO {
	return shadowEntryDTO{
		Stage:         string(e.Stage),
		PrimaryResult: e.PrimaryResult,
		ShadowResult:  e.ShadowResult,
		Agreed:        e.Agreed,
		RecordedAt:    e.RecordedAt.Format(time.RFC3339),
	}
}

// Package domain holds the persisted entities described in spec.md §3.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending               TaskStatus = "pending"
	TaskInProgress            TaskStatus = "in_progress"
	TaskPassing               TaskStatus = "passing"
	TaskComplete              TaskStatus = "complete"
	TaskBlocked               TaskStatus = "blocked"
	TaskBlockedStaticReview   TaskStatus = "blocked-static-review"
)

// DependencySatisfied reports whether status counts toward the
// dependency gate (spec §3 invariant, §9 open question #1: both
// "passing" and "complete" satisfy a depends_on edge).
func (s TaskStatus) DependencySatisfied() bool {
	return s == TaskPassing || s == TaskComplete
}

type Task struct {
	ID                uuid.UUID
	TaskKey           string
	Title             string
	Goal              string
	Phase             int
	Sequence          int
	SpecID            string
	TestFile          string
	ImplFile          string
	VerifyCommand     string
	DoneCriteria      string
	AcceptanceCriteria []string
	ModuleExports     []string
	DependsOn         []string

	Status TaskStatus

	ClaimedBy      *string
	ClaimedAt      *time.Time
	ClaimExpiresAt *time.Time
	Version        int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ready reports whether t can be claimed given the status of its
// dependencies, keyed by task_key (spec §3: "a task becomes ready when
// status = pending AND every task in depends_on has status ∈
// {passing, complete}"). A depends_on entry with no matching key in
// statuses is treated as unmet (spec §4.2 edge case).
func (t *Task) Ready(statuses map[string]TaskStatus) bool {
	if t.Status != TaskPending {
		return false
	}
	for _, dep := range t.DependsOn {
		st, ok := statuses[dep]
		if !ok || !st.DependencySatisfied() {
			return false
		}
	}
	return true
}

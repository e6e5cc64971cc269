package models

import (
	"time"
)

// ==================== Test User Types ====================

// User is an account created through the onboarding flow
type User struct {
	UserName       string `json:"user_name"`
	SessionID      string `json:"session_id"`
	RecoveryPhrase string `json:"recovery_phrase"`
}

// ==================== Scenario Types ====================

// FixtureKind names the window/user setup a scenario starts from
type FixtureKind string

const (
	FixtureTwoWindows       FixtureKind = "two_windows"         // Two fresh windows, no users
	FixtureAlice1WBob1W     FixtureKind = "alice_1w_bob_1w"     // Alice and Bob, one window each
	FixtureAlice1WNoNetwork FixtureKind = "alice_1w_no_network" // Alice alone, offline
)

// ScenarioInfo describes a registered scenario
type ScenarioInfo struct {
	Name    string      `json:"name"`
	Fixture FixtureKind `json:"fixture"`
}

// ==================== Run Types ====================

// RunStatus represents the status of a suite run or a scenario
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further updates will follow
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// SuiteRun represents a single execution of a set of scenarios
type SuiteRun struct {
	ID                 string     `json:"id" db:"id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	Status             RunStatus  `json:"status" db:"status"`
	ScenariosJSON      string     `json:"-" db:"scenarios"` // JSON string
	UpdateSnapshots    string     `json:"update_snapshots" db:"update_snapshots"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`

	// Computed fields
	Scenarios []string         `json:"scenarios,omitempty"`
	Results   []ScenarioResult `json:"results,omitempty"`
}

// ScenarioResult is the outcome of one scenario inside a run
type ScenarioResult struct {
	ID             string                `json:"id" db:"id"`
	RunID          string                `json:"run_id" db:"run_id"`
	Scenario       string                `json:"scenario" db:"scenario"`
	Status         RunStatus             `json:"status" db:"status"`
	RetryCount     int                   `json:"retry_count" db:"retry_count"`
	ScreenshotPath string                `json:"screenshot_path,omitempty" db:"screenshot_path"`
	ErrorMessage   string                `json:"error_message,omitempty" db:"error_message"`
	ExecutedAt     *time.Time            `json:"executed_at" db:"executed_at"`
	Duration       int64                 `json:"duration_ms,omitempty" db:"duration_ms"`
	Attempts       []VerificationAttempt `json:"attempts,omitempty"`
}

// VerificationAttempt is one probe/compare round of a retried assertion
type VerificationAttempt struct {
	Verification string `json:"verification" db:"verification"`
	Index        int    `json:"index" db:"attempt_index"`
	ElapsedMs    int64  `json:"elapsed_ms" db:"elapsed_ms"`
	Success      bool   `json:"success" db:"success"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
}

// ==================== Workflow Types ====================

// SuiteInput represents input for executing a suite run
type SuiteInput struct {
	RunID           string   `json:"run_id"`
	Scenarios       []string `json:"scenarios"`
	UpdateSnapshots string   `json:"update_snapshots"`
	Parallelism     int      `json:"parallelism"`
	Timeout         int      `json:"timeout_seconds"`
	RetryAttempts   int      `json:"retry_attempts"`
	Cleanup         bool     `json:"cleanup"`
}

// SuiteResult represents the result of a suite run
type SuiteResult struct {
	RunID         string           `json:"run_id"`
	Status        RunStatus        `json:"status"`
	Results       []ScenarioResult `json:"results"`
	TotalDuration int64            `json:"total_duration_ms"`
	ErrorMessage  string           `json:"error_message,omitempty"`
}

// ==================== API Request/Response Types ====================

// RunRequest represents a request to start a suite run
type RunRequest struct {
	Scenarios       []string `json:"scenarios" validate:"dive,required"`
	UpdateSnapshots string   `json:"update_snapshots" validate:"omitempty,oneof=none missing all true false"`
	Parallelism     int      `json:"parallelism" validate:"gte=0,lte=5"`
	Cleanup         bool     `json:"cleanup"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ScenarioStatusUpdate represents a status update for a single scenario
type ScenarioStatusUpdate struct {
	RunID    string    `json:"run_id"`
	Scenario string    `json:"scenario"`
	Status   RunStatus `json:"status"`
	Message  string    `json:"message,omitempty"`
}

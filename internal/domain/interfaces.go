package domain

import (
	"context"
)

// ProfileStore loads patient and trial profiles
type ProfileStore interface {
	LoadPatient(ctx context.Context, patientID string) (*PatientProfile, error)
	LoadTrials(ctx context.Context, patientID string) ([]*TrialProfile, error)
	ListPatients(ctx context.Context) ([]string, error)
}

// ReasoningCache stores eligibility reasoning keyed by patient and trial
type ReasoningCache interface {
	GetReasoning(ctx context.Context, patientID, trialID string) (*EligibilityReasoning, error)
	SetReasoning(ctx context.Context, patientID, trialID string, reasoning *EligibilityReasoning) error
	InvalidatePatient(ctx context.Context, patientID string) error
}

// ResultRecorder persists evaluation results
type ResultRecorder interface {
	Save(ctx context.Context, runID, patientID string, eval *TrialEvaluation) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}

// Package profile loads patient and trial profiles from a directory tree.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
)

const sigirPrefix = "sigir-"

// FileStore reads profiles from JSON files.
//
// Patients live at <patientsDir>/<N>.json for ids of the form "sigir-N" and
// <patientsDir>/<id>.json otherwise. Trials retrieved for a patient live at
// <trialsDir>/<patientID>/*.json.
type FileStore struct {
	patientsDir string
	trialsDir   string
	logger      *logrus.Logger
}

// NewFileStore creates a new profile file store
func NewFileStore(patientsDir, trialsDir string, logger *logrus.Logger) *FileStore {
	return &FileStore{
		patientsDir: patientsDir,
		trialsDir:   trialsDir,
		logger:      logger,
	}
}

// PatientFileName maps a patient id to its profile file name.
func PatientFileName(patientID string) string {
	if i := strings.Index(patientID, sigirPrefix); i >= 0 {
		return patientID[i+len(sigirPrefix):] + ".json"
	}
	return patientID + ".json"
}

// LoadPatient loads a patient profile. A missing file yields domain.ErrNotFound.
func (s *FileStore) LoadPatient(ctx context.Context, patientID string) (*domain.PatientProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if patientID == "" || strings.ContainsAny(patientID, `/\`) {
		return nil, domain.NewValidationError("patient_id", "must be a plain identifier", patientID)
	}

	path := filepath.Join(s.patientsDir, PatientFileName(patientID))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("patient profile %s: %w", patientID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read patient profile %s: %w", patientID, err)
	}

	var profile domain.PatientProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode patient profile %s: %w", patientID, err)
	}
	if profile.PatientID == "" {
		profile.PatientID = patientID
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"conditions": len(profile.Conditions),
	}).Debug("Loaded patient profile")

	return &profile, nil
}

// LoadTrials loads every trial profile for a patient, sorted by file name.
// A missing trial directory yields an empty list.
func (s *FileStore) LoadTrials(ctx context.Context, patientID string) ([]*domain.TrialProfile, error) {
	if strings.ContainsAny(patientID, `/\`) {
		return nil, domain.NewValidationError("patient_id", "must be a plain identifier", patientID)
	}

	dir := filepath.Join(s.trialsDir, patientID)
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list trial profiles: %w", err)
	}
	sort.Strings(files)

	trials := make([]*domain.TrialProfile, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read trial profile %s: %w", file, err)
		}

		var trial domain.TrialProfile
		if err := json.Unmarshal(data, &trial); err != nil {
			s.logger.WithError(err).WithField("file", file).Warn("Skipping malformed trial profile")
			continue
		}
		trial.FileName = filepath.Base(file)
		trials = append(trials, &trial)
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"trials":     len(trials),
	}).Debug("Loaded trial profiles")

	return trials, nil
}

// ListPatients returns the ids of patients that have a trial directory, sorted.
func (s *FileStore) ListPatients(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.trialsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, ctx.Err()
}

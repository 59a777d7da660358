package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-matching-mcp-server/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestStore(t *testing.T) (*FileStore, string, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	root := t.TempDir()
	patients := filepath.Join(root, "patient_profiles")
	trials := filepath.Join(root, "trial_profiles")
	return NewFileStore(patients, trials, logger), patients, trials
}

func TestPatientFileName(t *testing.T) {
	assert.Equal(t, "20141.json", PatientFileName("sigir-20141"))
	assert.Equal(t, "p7.json", PatientFileName("p7"))
}

func TestFileStore_LoadPatient(t *testing.T) {
	store, patients, _ := newTestStore(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(patients, "20141.json"), `{
		"patient_note": {"text": "A 58-year-old woman"},
		"conditions": [{"entity_variable_name": "patient_has_diabetes_now", "conceptId": "73211009"}]
	}`)

	t.Run("sigir id maps to numbered file", func(t *testing.T) {
		p, err := store.LoadPatient(ctx, "sigir-20141")
		require.NoError(t, err)
		assert.Equal(t, "sigir-20141", p.PatientID)
		assert.Equal(t, "A 58-year-old woman", p.NoteText())
		require.Len(t, p.Conditions, 1)
	})

	t.Run("missing profile", func(t *testing.T) {
		_, err := store.LoadPatient(ctx, "sigir-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := store.LoadPatient(ctx, "../secret")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("malformed json", func(t *testing.T) {
		writeFile(t, filepath.Join(patients, "bad.json"), `{not json`)
		_, err := store.LoadPatient(ctx, "bad")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestFileStore_LoadTrials(t *testing.T) {
	store, _, trials := newTestStore(t)
	ctx := context.Background()

	dir := filepath.Join(trials, "sigir-20141")
	writeFile(t, filepath.Join(dir, "rank_2.json"), `{"trial_info": {"trial_id": "NCT2"}, "inclusion_criteria": ["patient_has_asthma"]}`)
	writeFile(t, filepath.Join(dir, "rank_1.json"), `{"trial_info": {"trial_id": "NCT1"}, "exclusion_criteria": ["patient_has_asthma", 3]}`)
	writeFile(t, filepath.Join(dir, "broken.json"), `[`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `ignored`)

	loaded, err := store.LoadTrials(ctx, "sigir-20141")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "NCT1", loaded[0].ID())
	assert.Equal(t, "rank_1.json", loaded[0].FileName)
	assert.Equal(t, []string{"patient_has_asthma"}, loaded[0].ExclusionCriteria)
	assert.Equal(t, "NCT2", loaded[1].ID())

	empty, err := store.LoadTrials(ctx, "sigir-404")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFileStore_ListPatients(t *testing.T) {
	store, _, trials := newTestStore(t)
	ctx := context.Background()

	ids, err := store.ListPatients(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, os.MkdirAll(filepath.Join(trials, "sigir-2"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(trials, "sigir-1"), 0o755))
	writeFile(t, filepath.Join(trials, "README.json"), `{}`)

	ids, err = store.ListPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sigir-1", "sigir-2"}, ids)
}

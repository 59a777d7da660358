package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-matching-mcp-server/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testLiteConfig(t *testing.T) *config.LiteConfig {
	t.Helper()
	root := t.TempDir()
	return &config.LiteConfig{
		DataDir:     filepath.Join(root, "data"),
		PatientsDir: filepath.Join(root, "patients"),
		TrialsDir:   filepath.Join(root, "trials"),
	}
}

func TestRegister_PreservesExistingEntries(t *testing.T) {
	lite := testLiteConfig(t)
	path := filepath.Join(t.TempDir(), "client", "config.json")

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{
		"theme": "dark",
		"mcpServers": {"other": {"command": "/usr/bin/other"}}
	}`), 0o644))

	require.NoError(t, Register(path, "/opt/bin/mcp-server-lite", lite))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"dark"`, string(raw["theme"]))

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	require.Contains(t, cfg.MCPServers, "other")
	entry := cfg.MCPServers[ServerEntryName]
	assert.Equal(t, "/opt/bin/mcp-server-lite", entry.Command)
	assert.Equal(t, lite.DataDir, entry.Env["TRIAL_DATA_DIR"])
	assert.Equal(t, lite.TrialsDir, entry.Env["TRIAL_TRIALS_DIR"])
}

func TestRegister_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new", "config.json")

	require.NoError(t, Register(path, "/bin/server", testLiteConfig(t)))
	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.MCPServers, 1)

	assert.Error(t, Register(path, "", testLiteConfig(t)))
}

func TestGetStatusAndValidate(t *testing.T) {
	lite := testLiteConfig(t)
	ctx := context.Background()

	ok, issues := Validate(ctx, lite, testLogger())
	assert.False(t, ok)
	assert.Len(t, issues, 2)

	require.NoError(t, os.MkdirAll(lite.PatientsDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(lite.TrialsDir, "sigir-1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(lite.TrialsDir, "sigir-2"), 0o755))

	status, err := GetStatus(ctx, lite, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"sigir-1", "sigir-2"}, status.Patients)
	assert.Empty(t, status.Issues)
	assert.False(t, status.DataDirExists)

	ok, _ = Validate(ctx, lite, testLogger())
	assert.True(t, ok)
}

func TestCommand_StatusAndRegister(t *testing.T) {
	lite := testLiteConfig(t)
	path := filepath.Join(t.TempDir(), "config.json")

	var out bytes.Buffer
	cmd := NewCommand(lite, testLogger())
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Trial Matching Server Status")
	assert.Contains(t, out.String(), "trial profiles directory not found")

	out.Reset()
	cmd.SetArgs([]string{"register", "--config", path, "--binary", "/bin/server"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `Registered "trial-matching"`)
	assert.FileExists(t, path)

	cmd.SetArgs([]string{"validate"})
	assert.Error(t, cmd.Execute())
}

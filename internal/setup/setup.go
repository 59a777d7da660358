// Package setup checks the lite server's data layout and registers the server
// with desktop MCP clients.
package setup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/config"
	"github.com/trial-matching-mcp-server/internal/profile"
)

// ServerEntryName is the key the server is registered under in client configs.
const ServerEntryName = "trial-matching"

// ClientConfig is the part of an MCP client configuration file we edit.
// Unknown top-level keys are preserved.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// ServerEntry launches one stdio MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// LoadClientConfig reads a client configuration; a missing file is empty.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: map[string]ServerEntry{}, extra: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read client config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// SaveClientConfig writes the configuration back, creating parent directories.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry in the client configuration at
// path, pointing it at binaryPath with the lite data directories.
func Register(path, binaryPath string, lite *config.LiteConfig) error {
	if binaryPath == "" {
		return fmt.Errorf("server binary path is required")
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return err
	}

	entry := ServerEntry{
		Command: binaryPath,
		Env: map[string]string{
			"TRIAL_DATA_DIR":     lite.DataDir,
			"TRIAL_PATIENTS_DIR": absPath(lite.PatientsDir),
			"TRIAL_TRIALS_DIR":   absPath(lite.TrialsDir),
		},
	}
	cfg.MCPServers[ServerEntryName] = entry

	return SaveClientConfig(path, cfg)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Status describes the lite server's data layout.
type Status struct {
	DataDir             string   `json:"data_dir"`
	DataDirExists       bool     `json:"data_dir_exists"`
	PatientsDir         string   `json:"patients_dir"`
	TrialsDir           string   `json:"trials_dir"`
	PreferencesDB       string   `json:"preferences_db"`
	PreferencesDBExists bool     `json:"preferences_db_exists"`
	Patients            []string `json:"patients"`
	Issues              []string `json:"issues,omitempty"`
}

// GetStatus inspects the configured directories.
func GetStatus(ctx context.Context, lite *config.LiteConfig, logger *logrus.Logger) (*Status, error) {
	status := &Status{
		DataDir:       lite.DataDir,
		DataDirExists: isDir(lite.DataDir),
		PatientsDir:   lite.PatientsDir,
		TrialsDir:     lite.TrialsDir,
		PreferencesDB: lite.PreferencesDBPath(),
	}
	if _, err := os.Stat(status.PreferencesDB); err == nil {
		status.PreferencesDBExists = true
	}

	if !isDir(lite.PatientsDir) {
		status.Issues = append(status.Issues, fmt.Sprintf("patient profiles directory not found: %s", lite.PatientsDir))
	}
	if !isDir(lite.TrialsDir) {
		status.Issues = append(status.Issues, fmt.Sprintf("trial profiles directory not found: %s", lite.TrialsDir))
		return status, nil
	}

	patients, err := profile.NewFileStore(lite.PatientsDir, lite.TrialsDir, logger).ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	status.Patients = patients
	if len(patients) == 0 {
		status.Issues = append(status.Issues, "no patients with retrieved trials")
	}
	return status, nil
}

// Validate reports whether the lite server can evaluate anything.
func Validate(ctx context.Context, lite *config.LiteConfig, logger *logrus.Logger) (bool, []string) {
	status, err := GetStatus(ctx, lite, logger)
	if err != nil {
		return false, []string{err.Error()}
	}
	return len(status.Issues) == 0, status.Issues
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

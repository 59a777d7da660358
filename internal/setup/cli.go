package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trial-matching-mcp-server/internal/config"
)

// NewCommand builds the `setup` command tree for the lite server.
func NewCommand(lite *config.LiteConfig, logger *logrus.Logger) *cobra.Command {
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Inspect the data layout and register the server with an MCP client",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configured directories and discovered patients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := GetStatus(cmd.Context(), lite, logger)
			if err != nil {
				return err
			}
			printStatus(cmd, status)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that patient and trial profiles are in place",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, issues := Validate(cmd.Context(), lite, logger)
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
			}
			return fmt.Errorf("configuration has %d issue(s)", len(issues))
		},
	}

	var configPath, binaryPath string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Add this server to an MCP client configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if binaryPath == "" {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("could not determine server binary: %w", err)
				}
				binaryPath = exe
			}
			if err := Register(configPath, binaryPath, lite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %q in %s\n", ServerEntryName, configPath)
			return nil
		},
	}
	registerCmd.Flags().StringVar(&configPath, "config", "", "path to the client configuration file")
	registerCmd.Flags().StringVar(&binaryPath, "binary", "", "server binary (defaults to this executable)")
	_ = registerCmd.MarkFlagRequired("config")

	setupCmd.AddCommand(statusCmd, validateCmd, registerCmd)
	return setupCmd
}

func printStatus(cmd *cobra.Command, s *Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Trial Matching Server Status")
	fmt.Fprintln(out, "============================")
	fmt.Fprintf(out, "Data directory:   %s (%s)\n", s.DataDir, present(s.DataDirExists))
	fmt.Fprintf(out, "Preferences DB:   %s (%s)\n", s.PreferencesDB, present(s.PreferencesDBExists))
	fmt.Fprintf(out, "Patient profiles: %s\n", s.PatientsDir)
	fmt.Fprintf(out, "Trial profiles:   %s\n", s.TrialsDir)
	fmt.Fprintf(out, "Patients:         %d\n", len(s.Patients))
	if len(s.Patients) > 0 {
		fmt.Fprintf(out, "                  %s\n", strings.Join(s.Patients, ", "))
	}
	if len(s.Issues) > 0 {
		fmt.Fprintln(out, "Issues:")
		for _, issue := range s.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}

func present(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

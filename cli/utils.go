package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// extractCLIFlags collects the flags explicitly set by the user, keyed by the
// names config.CLIFlagPaths understands.
func extractCLIFlags(cmd *cobra.Command) (map[string]any, error) {
	flags := make(map[string]any)
	getString := func(name string) (any, error) { return cmd.Flags().GetString(name) }
	getInt := func(name string) (any, error) { return cmd.Flags().GetInt(name) }
	getBool := func(name string) (any, error) { return cmd.Flags().GetBool(name) }

	flagDefs := []struct {
		flagName string
		key      string
		getter   func(string) (any, error)
	}{
		// Server flags
		{"host", "host", getString},
		{"port", "port", getInt},
		{"upstream", "upstream", getString},

		// Normalizer flags
		{"model-marker", "model-marker", getString},
		{"verify-output", "verify-output", getBool},
		{"metrics", "metrics", getBool},

		// Logging flags
		{"log-level", "log-level", getString},
		{"log-json", "log-json", getBool},
		{"log-source", "log-source", getBool},
	}
	for _, def := range flagDefs {
		if cmd.Flags().Lookup(def.flagName) == nil || !cmd.Flags().Changed(def.flagName) {
			continue
		}
		value, err := def.getter(def.flagName)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", def.flagName, err)
		}
		flags[def.key] = value
	}

	if cmd.Flags().Lookup("no-normalize") != nil && cmd.Flags().Changed("no-normalize") {
		off, err := cmd.Flags().GetBool("no-normalize")
		if err != nil {
			return nil, fmt.Errorf("failed to get no-normalize flag: %w", err)
		}
		flags["normalize"] = !off
	}
	if on, err := cmd.Flags().GetBool("debug"); err == nil && on {
		flags["log-level"] = "debug"
	}
	if on, err := cmd.Flags().GetBool("quiet"); err == nil && on {
		flags["log-level"] = "disabled"
	}
	return flags, nil
}

// loadEnvFile loads environment variables from the --env-file path. A missing
// file is not an error.
func loadEnvFile(cmd *cobra.Command) (string, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return "", fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return "", nil
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	if !filepath.IsAbs(envFile) {
		envFile = filepath.Join(pwd, envFile)
	}
	absPath, err := filepath.Abs(filepath.Clean(envFile))
	if err != nil {
		return "", fmt.Errorf("failed to resolve env file path: %w", err)
	}
	fileInfo, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", fmt.Errorf("failed to stat env file: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return "", fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(absPath); err != nil {
		return "", fmt.Errorf("failed to load env file %s: %w", absPath, err)
	}
	return absPath, nil
}

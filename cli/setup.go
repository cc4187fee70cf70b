package cli

import (
	"context"
	"fmt"

	"github.com/kiriru/mistral-relay/pkg/config"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/spf13/cobra"
)

// SetupGlobalConfig loads the environment file and the configuration, then
// stores the config manager and a configured logger in the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	if _, err := loadEnvFile(cmd); err != nil {
		return fmt.Errorf("failed to load environment file: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cliFlags, err := extractCLIFlags(cmd)
	if err != nil {
		return fmt.Errorf("failed to extract CLI flags: %w", err)
	}

	var sources []config.Source
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config file: %w", err)
	}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	if len(cliFlags) > 0 {
		sources = append(sources, config.NewCLIProvider(cliFlags))
	}

	manager := config.NewManager(nil)
	cfg, err := manager.Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	log := logger.SetupLogger(
		logger.ParseLevel(cfg.Runtime.LogLevel),
		cfg.Runtime.LogJSON,
		cfg.Runtime.LogSource,
	)
	if configFile != "" {
		log.Debug("Configuration loaded", "file", configFile, "upstream_source", manager.Service.GetSource("upstream.base_url"))
	}
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithManager(ctx, manager)
	cmd.SetContext(ctx)
	return nil
}

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kiriru/mistral-relay/pkg/config"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RootCmd returns the mistral-relay command. Run without a subcommand it
// starts the relay server.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mistral-relay",
		Short: "Chat-completion relay that enforces role alternation",
		Long: `mistral-relay forwards every request to an OpenAI-compatible chat-completion
API. Requests for models that reject non-alternating conversations have their
messages rewritten so that user and assistant turns strictly alternate.`,
		SilenceUsage: true,
		RunE:         runRelay,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if manager := config.ManagerFromContext(cmd.Context()); manager != nil {
				return manager.Close(cmd.Context())
			}
			return nil
		},
	}

	addGlobalFlags(root.PersistentFlags())
	addRelayFlags(root.Flags())

	root.AddCommand(
		VersionCmd(),
		NormalizeCmd(),
		ConfigCmd(),
	)
	return root
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String("config", "mistral-relay.yaml", "Path to configuration file")
	flags.String("env-file", ".env", "Path to environment file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.Bool("log-source", false, "Include source file and line in logs")
	flags.Bool("debug", false, "Enable debug mode (sets log level to debug)")
	flags.Bool("quiet", false, "Disable logging")
}

func addRelayFlags(flags *pflag.FlagSet) {
	flags.String("host", "0.0.0.0", "Host to listen on")
	flags.Int("port", 8080, "Port to listen on")
	flags.String("upstream", config.DefaultUpstreamURL, "Base URL of the upstream chat-completion API")
	flags.String("model-marker", config.DefaultModelMarker, "Normalize requests whose model name contains this text")
	flags.Bool("no-normalize", false, "Forward every request unchanged")
	flags.Bool("verify-output", false, "Re-check normalized conversations before forwarding")
	flags.Bool("metrics", false, "Expose Prometheus metrics")
}

func runRelay(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	log.Info("Starting mistral-relay",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"upstream", cfg.Upstream.BaseURL,
		"model_marker", cfg.Normalizer.ModelMarker,
	)
	return relay.Run(ctx, cfg, config.ManagerFromContext(ctx))
}

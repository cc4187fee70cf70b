package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/kiriru/mistral-relay/pkg/chat"
	"github.com/kiriru/mistral-relay/pkg/config"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/normalizer"
	"github.com/kiriru/mistral-relay/pkg/relay"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

// NormalizeCmd returns the offline normalize command. It applies the same
// gate and rewrite the relay applies to a chat-completion request body.
func NormalizeCmd() *cobra.Command {
	var (
		force bool
		stats bool
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a chat-completion request body",
		Long: `Read a chat-completion request body from a file, or from stdin when no file
is given, and print it as the relay would forward it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd, args, force, stats, raw)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Normalize regardless of the model gate")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print normalization counters to stderr")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the body without pretty formatting")
	return cmd
}

func runNormalize(cmd *cobra.Command, args []string, force, showStats, raw bool) error {
	ctx := cmd.Context()
	log := logger.FromContext(ctx)
	body, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	cfg := config.FromContext(ctx)
	gate := relay.NewGate(&cfg.Normalizer)
	model := chat.Model(body)
	out := body
	var stats normalizer.Stats
	if force || gate.ShouldNormalize(cfg.Normalizer.Paths[0], model) {
		out, stats, err = chat.Rewrite(body)
		if err != nil {
			return fmt.Errorf("invalid chat request: %w", err)
		}
	} else {
		log.Info("Model is not gated, body left unchanged", "model", model)
	}

	if !raw {
		out = pretty.Pretty(out)
		if isTerminal(cmd.OutOrStdout()) {
			out = pretty.Color(out, nil)
		}
	}
	if _, err := cmd.OutOrStdout().Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if showStats {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"input_turns=%d output_turns=%d merged=%d demoted=%d bridged=%d changed=%t\n",
			stats.InputTurns, stats.OutputTurns, stats.Merged, stats.Demoted, stats.Bridged, stats.Changed(),
		)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return body, nil
}

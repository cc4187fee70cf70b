package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kiriru/mistral-relay/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration inspection and validation",
	}
	cmd.AddCommand(
		configShowCmd(),
		configValidateCmd(),
	)
	return cmd
}

// configShowCmd shows the current configuration with source information
func configShowCmd() *cobra.Command {
	var (
		format      string
		showSources bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values and their sources",
		Long: `Display the effective configuration. With --sources, each key is annotated with
the source (cli, yaml, env or default) that provided it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager := config.ManagerFromContext(cmd.Context())
			if manager == nil {
				return fmt.Errorf("configuration not loaded")
			}
			entries := collectEntries(manager.Service, manager.Get())
			return formatConfigOutput(cmd.OutOrStdout(), entries, format, showSources)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (json, yaml, table)")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Show configuration sources")
	return cmd
}

// configValidateCmd reports whether the configuration loads and validates.
// Loading already happened in the persistent pre-run, so reaching RunE means
// the configuration is valid.
func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (upstream %s, listening on %s:%d)\n",
				cfg.Upstream.BaseURL, cfg.Server.Host, cfg.Server.Port)
			return nil
		},
	}
}

type configEntry struct {
	Key    string
	Value  any
	Source config.SourceType
}

// collectEntries walks cfg by koanf tags and returns one entry per leaf key,
// sorted by key.
func collectEntries(service config.Service, cfg *config.Config) []configEntry {
	var entries []configEntry
	var walk func(prefix string, val reflect.Value)
	walk = func(prefix string, val reflect.Value) {
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			tag := field.Tag.Get("koanf")
			if tag == "" || tag == "-" {
				continue
			}
			key := tag
			if prefix != "" {
				key = prefix + "." + tag
			}
			fieldVal := val.Field(i)
			if fieldVal.Kind() == reflect.Struct {
				walk(key, fieldVal)
				continue
			}
			source := service.GetSource(key)
			if source == "" {
				source = config.SourceDefault
			}
			entries = append(entries, configEntry{Key: key, Value: displayValue(fieldVal), Source: source})
		}
	}
	walk("", reflect.ValueOf(cfg).Elem())
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func displayValue(v reflect.Value) any {
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	return v.Interface()
}

// formatConfigOutput formats and outputs configuration based on requested format
func formatConfigOutput(w io.Writer, entries []configEntry, format string, showSources bool) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(nestedOutput(entries, showSources))
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(nestedOutput(entries, showSources)); err != nil {
			return err
		}
		return encoder.Close()
	case "table":
		return outputTable(w, entries, showSources)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func nestedOutput(entries []configEntry, showSources bool) map[string]any {
	cfg := make(map[string]any)
	sources := make(map[string]config.SourceType)
	for _, e := range entries {
		parts := strings.Split(e.Key, ".")
		node := cfg
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = e.Value
		if e.Source != config.SourceDefault {
			sources[e.Key] = e.Source
		}
	}
	output := map[string]any{"config": cfg}
	if showSources && len(sources) > 0 {
		output["sources"] = sources
	}
	return output
}

// outputTable outputs configuration as a table
func outputTable(out io.Writer, entries []configEntry, showSources bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if showSources {
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
		fmt.Fprintln(w, "---\t-----\t------")
	} else {
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintln(w, "---\t-----")
	}
	for _, e := range entries {
		if showSources {
			fmt.Fprintf(w, "%s\t%v\t%s\n", e.Key, e.Value, e.Source)
		} else {
			fmt.Fprintf(w, "%s\t%v\n", e.Key, e.Value)
		}
	}
	return w.Flush()
}

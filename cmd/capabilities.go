package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/executor"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// discoverTimeout bounds dialling remote agents for the listing.
const discoverTimeout = 15 * time.Second

func newCapabilitiesCmd() *cobra.Command {
	var (
		configPath string
		output     string
		discover   bool
	)

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Print the loaded capability catalogue",
		Long: `Print every function the registry provides, with its agent, parameters
and whether it is idempotent. With --discover the remote agents of the
registry file are contacted and the functions they advertise are added.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("config") {
				loadEnvIfEmpty(&configPath, "KRATOS_CONFIG")
			}
			caps, err := loadCatalogue(cmd.Context(), configPath, discover)
			if err != nil {
				return err
			}
			return printCatalogue(cmd.OutOrStdout(), caps, output)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Registry file (default: built-in k8s-agent)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text or json")
	cmd.Flags().BoolVar(&discover, "discover", false, "Contact remote agents and list the functions they advertise")
	return cmd
}

// loadCatalogue returns the registry's capabilities in lookup order.
func loadCatalogue(ctx context.Context, path string, discover bool) ([]capability.Capability, error) {
	cfg, err := loadRegistry(path)
	if err != nil {
		return nil, err
	}
	caps := cfg.Capabilities

	if discover {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
		defer cancel()
		rt := &runtime{adapter: executor.NewAdapter(executor.DefaultConfig()), logger: slog.Default()}
		defer func() { _ = rt.Close() }()
		caps = append(caps, rt.dialRemotes(ctx, cfg, rootCmd.Version)...)
	}

	registry, err := capability.NewRegistryFrom(caps)
	if err != nil {
		return nil, fmt.Errorf("failed to build capability registry: %w", err)
	}
	return registry.List(), nil
}

func printCatalogue(w io.Writer, caps []capability.Capability, output string) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(caps)
	case outputText, "":
	default:
		return fmt.Errorf("unsupported output format %q (supported: %s, %s)", output, outputText, outputJSON)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "AGENT\tFUNCTION\tPARAMETERS\tIDEMPOTENT\tDESCRIPTION")
	for _, c := range caps {
		idempotent := "no"
		if c.IsIdempotent() {
			idempotent = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.AgentID, c.Function, formatParams(c.Params), idempotent, c.Description)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write catalogue: %w", err)
	}
	return nil
}

// formatParams renders parameters as name*:type, with * marking required ones.
func formatParams(params []capability.Param) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		name := p.Name
		if p.Required {
			name += "*"
		}
		parts[i] = name + ":" + string(p.Type)
	}
	return strings.Join(parts, ",")
}

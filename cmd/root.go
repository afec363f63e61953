package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the kratos application.
var rootCmd = &cobra.Command{
	Use:   "kratos",
	Short: "Conversational operator for Kubernetes clusters",
	Long: `kratos turns plain-language requests into calls to cluster agents.
It resolves a request against the capability registry, asks for missing
parameters, runs the call with retries and a circuit breaker and reports the
outcome, keeping a transcript per session.

It can be driven as a Model Context Protocol (MCP) server, over a JSON API,
or from the terminal with 'kratos chat'. When run without subcommands it
starts the server (equivalent to 'kratos serve').`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// It is called from the main package to inject the version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kratos version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newCapabilitiesCmd())
}

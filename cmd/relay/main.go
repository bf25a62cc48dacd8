// Package main is the relay CLI: a guarded multi-tenant conversational
// service with session memory, webhook fan-out, and background task
// processing.
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// Configuration can also come from RELAY_* environment variables, e.g.
// RELAY_REDIS_URL and RELAY_LLM_API_KEY.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Guarded multi-tenant conversational service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relay %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

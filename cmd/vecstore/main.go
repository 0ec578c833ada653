// Vecstore is a vector-embedding document store with an HTTP API.
//
// The serve subcommand runs the store as a daemon; the remaining
// subcommands are thin HTTP clients against a running server.
//
// Usage:
//
//	# Start the server with defaults
//	vecstore serve
//
//	# Start with a config file
//	vecstore serve --config vecstore.yaml
//
//	# Add a document and search
//	vecstore add --id doc-1 "Go is a statically typed language"
//	vecstore search "typed languages" --k 5
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "vecstore",
	Short: "Vector-embedding document store",
	Long: `Vecstore stores documents alongside their vector embeddings and serves
semantic, keyword, and hybrid search over HTTP.

Run "vecstore serve" to start the server, then use the client
subcommands (add, search, export, import, stats, health) against it.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vecstore\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8480", "vecstore server URL")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

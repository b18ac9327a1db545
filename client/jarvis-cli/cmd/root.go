package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "jarvis-cli",
	Short: "A CLI client to interact with the Jarvis knowledge-base service",
	Long: `A command-line interface for asking questions against the knowledge base
and listing the document paths you are allowed to browse.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("JARVIS_SERVER", "http://localhost:8080"), "Base URL of the RAG service")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("JARVIS_TOKEN"), "Bearer token (default $JARVIS_TOKEN)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

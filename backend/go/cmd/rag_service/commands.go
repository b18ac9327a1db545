package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

// buildServeCmd creates the "serve" command that starts the HTTP API.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API",
		Long: `Start the HTTP API: POST /api/v1/chat streams answers as server-sent events,
GET /api/v1/paths lists browsable document paths, /healthz and /metrics serve operators.

With --offline every external store is replaced by in-process implementations:
an in-memory index, the hash embedder and an allow-all permission table.`,
		Example: `  rag_service serve --config /etc/jarvis/rag.yaml
  rag_service serve --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, offline)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVar(&offline, "offline", false, "Run without external stores")
	return cmd
}

// buildIndexCmd creates the "index" command that loads a directory into a knowledge base.
func buildIndexCmd() *cobra.Command {
	var (
		configPath   string
		kb           string
		objectPrefix string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Index a directory of documents into a knowledge base",
		Long: `Walk <dir>, read every markdown, text, HTML, PDF, .docx and .xlsx file as one
document, chunk and embed it, and write the chunks to the configured search backend.
The path of each document is its path relative to <dir>. Other files are skipped.`,
		Example: `  rag_service index --kb hr ./docs/hr
  rag_service index --kb eng --object-prefix eng/ ./docs/eng`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd.OutOrStdout(), indexOptions{
				configPath:   configPath,
				kb:           kb,
				dir:          args[0],
				objectPrefix: objectPrefix,
				dryRun:       dryRun,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&kb, "kb", "", "Knowledge base id")
	cmd.Flags().StringVar(&objectPrefix, "object-prefix", "", "Object storage key prefix; sets download links for the documents")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Chunk and embed into memory only")
	_ = cmd.MarkFlagRequired("kb")
	return cmd
}

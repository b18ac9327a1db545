// Command rag_service runs the knowledge-base QA service and its indexing jobs.
//
//	rag_service serve --config config/config.yaml
//	rag_service index --config config/config.yaml --kb hr ./docs/hr
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rag_service",
		Short:         "Knowledge-base question answering service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildIndexCmd())
	return root
}

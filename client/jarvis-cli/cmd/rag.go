package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Interact with the RAG service",
}

var (
	deepThink bool
	sessionID string
	keywords  []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question and stream the answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(serverURL, token)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		err = c.Ask(cmd.Context(), askRequest{
			Message:     args[0],
			SessionID:   sessionID,
			IsDeepThink: deepThink,
			Keywords:    keywords,
		}, func(text string) {
			fmt.Fprint(out, text)
		})
		fmt.Fprintln(out)
		return err
	},
}

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the document paths you may browse",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(serverURL, token)
		if err != nil {
			return err
		}
		paths, err := c.Paths(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&deepThink, "deep", false, "Ask for a more thorough answer")
	askCmd.Flags().StringVar(&sessionID, "session", "", "Conversation id; earlier turns are used as context")
	askCmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Extra keyword to search for (repeatable)")

	rootCmd.AddCommand(ragCmd)
	ragCmd.AddCommand(askCmd)
	ragCmd.AddCommand(pathsCmd)
}

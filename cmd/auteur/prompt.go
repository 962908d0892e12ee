package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/himanalot/auteur-sub004/pkg/toolkit"
	"github.com/himanalot/auteur-sub004/pkg/tools"
)

// newPromptCommand prints the system prompt the chat command would send,
// rendered against the default toolkit.
func newPromptCommand() *cobra.Command {
	var projectContext string

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the rendered system prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tools.NewInMemoryToolRegistry()
			err := toolkit.RegisterDefaultTools(registry,
				toolkit.NewHTTPDocSearcher("http://localhost:8810"),
				toolkit.NewHTTPScriptRunner("http://localhost:8811"))
			if err != nil {
				return err
			}

			s, err := loadSettings()
			if err != nil {
				return err
			}

			rendered, err := buildSystemPrompt(s, registry, projectContext)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectContext, "project-context", "", "Extra project context for the system prompt")
	return cmd
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emera/sattur/internal/prompt"
	"github.com/emera/sattur/internal/responder"
	"github.com/emera/sattur/internal/router"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect the prompt templates",
}

var promptsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Render every template with sample values",
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show")
		sample := prompt.Vars{
			"language":          "Sanskrit",
			"current_question":  "What does 'namaste' mean?",
			"previous_query":    "How do I say hello?",
			"previous_response": "You can say namaste.",
			"context":           "Lesson 1: The Alphabet",
			"helpers":           "1. translator - translates text",
		}

		templates := append(responder.Templates(), router.Template)
		failed := 0
		for _, t := range templates {
			out, err := t.Render(sample)
			if err != nil {
				failed++
				fmt.Printf("✗ %-20s %v\n", t.Name(), err)
				continue
			}
			fmt.Printf("✓ %-20s {%s}\n", t.Name(), strings.Join(t.Variables(), "} {"))
			if show {
				fmt.Println(out)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d templates failed to render", failed, len(templates))
		}
		return nil
	},
}

func init() {
	promptsCheckCmd.Flags().Bool("show", false, "Print each rendered prompt")
	promptsCmd.AddCommand(promptsCheckCmd)
}

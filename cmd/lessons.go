package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emera/sattur/internal/lessons"
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons [language]",
	Short: "List the curriculum's lessons for a language",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		language := cfg.Curriculum.DefaultLanguage
		if len(args) == 1 {
			language = args[0]
		}

		catalog := lessons.NewCatalog(cfg.Curriculum.Dir)
		list, err := catalog.List(language)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Printf("No lessons for %s under %s.\n", language, catalog.Root())
			return nil
		}

		fmt.Printf("%-4s  %s\n", "#", "Title")
		fmt.Println(strings.Repeat("─", 48))
		for _, l := range list {
			fmt.Printf("%-4d  %s\n", l.Number, l.Title)
		}
		return nil
	},
}

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emera/sattur/internal/embedding"
	"github.com/emera/sattur/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the grammar document index",
}

func openGrammarIndex(cmd *cobra.Command, rebuild bool) (*index.Searcher, error) {
	engine, err := embedding.NewEngine(cmd.Context(), cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding engine: %w", err)
	}
	b := index.NewBuilder(engine, cfg.Index, logger.Named("index"))
	return b.Open(cmd.Context(), cfg.Grammar.Domain(), rebuild)
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the grammar index from its source documents",
	Long:  "Builds the index when none is persisted. With --rebuild the existing index is replaced.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		start := time.Now()

		s, err := openGrammarIndex(cmd, rebuild)
		if err != nil {
			return err
		}
		fmt.Printf("Index %s: %d chunks from %s (%s)\n",
			cfg.Grammar.IndexPath, s.Len(), cfg.Grammar.SourceDir, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var indexQueryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Show the chunks the grammar guide would receive for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openGrammarIndex(cmd, false)
		if err != nil {
			return err
		}
		chunks, err := s.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			fmt.Println("No matching chunks.")
			return nil
		}

		sep := strings.Repeat("─", 60)
		for i, c := range chunks {
			fmt.Printf("%d. %s  (score %.3f)\n", i+1, c.Source, c.Score)
			fmt.Println(sep)
			fmt.Println(c.Content)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	indexBuildCmd.Flags().Bool("rebuild", false, "Replace an existing index")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexQueryCmd)
}

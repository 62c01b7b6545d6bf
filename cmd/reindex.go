package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the collections from saved chunk files",
	Long:  `Loads every chunk file under paths.output_dir, embeds the chunks (from the embedding cache where possible) and stores them again. Use after switching vector store backends.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		recreate, _ := cmd.Flags().GetBool("recreate")

		a, err := openApp(ctx, false, false)
		if err != nil {
			return err
		}
		defer closeApp(a)

		opts, err := a.PipelineOptions()
		if err != nil {
			return err
		}
		result, err := a.Pipeline.Reindex(ctx, recreate, opts.BatchSize)
		if err != nil {
			return err
		}

		fmt.Printf("Reindexed %d documents, %d chunks\n", result.Documents, result.Chunks)
		names := make([]string, 0, len(result.Collections))
		for name := range result.Collections {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-20s %d\n", name, result.Collections[name])
		}
		return nil
	},
}

func init() {
	reindexCmd.Flags().Bool("recreate", false, "empty every collection first")
	rootCmd.AddCommand(reindexCmd)
}

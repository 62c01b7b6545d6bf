package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the embedding cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached embeddings per model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)
		if a.Cache == nil {
			return errors.New("the embedding cache is disabled (embedding.cache_enabled)")
		}

		stats, err := a.Cache.Stats(ctx)
		if err != nil {
			return err
		}
		info := a.Embeddings.ModelInfo()
		fmt.Printf("Model:      %s (%d dims)\n", info.ModelName, info.Dimension)
		fmt.Printf("Database:   %s\n", a.DB.Path())
		fmt.Printf("Entries:    %d\n", stats.Entries)

		models := make([]string, 0, len(stats.ByModel))
		for m := range stats.ByModel {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Printf("  %-40s %d\n", m, stats.ByModel[m])
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached embedding",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)
		if a.Cache == nil {
			return errors.New("the embedding cache is disabled (embedding.cache_enabled)")
		}

		n, err := a.Cache.Len(ctx)
		if err != nil {
			return err
		}
		if err := a.Cache.Clear(ctx); err != nil {
			return err
		}
		fmt.Printf("Removed %d cached embeddings\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

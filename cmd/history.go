package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently asked questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")
		language, _ := cmd.Flags().GetString("language")
		days, _ := cmd.Flags().GetInt("days")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		filter := history.Filter{Language: language, Limit: limit}
		if days > 0 {
			since := time.Now().AddDate(0, 0, -days)
			filter.Since = &since
		}
		entries, err := a.History.List(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No questions recorded yet.")
			return nil
		}
		for _, e := range entries {
			mark := " "
			if !e.Answered {
				mark = "?"
			}
			fmt.Printf("%s %s  [%s] %s  (%d hits, top %.3f)\n",
				mark, e.Timestamp.Local().Format(time.DateTime), e.Language, e.Query, e.ResultCount, e.TopScore)
		}
		return nil
	},
}

var historyPopularCmd = &cobra.Command{
	Use:   "popular",
	Short: "Show the most frequently asked questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		n, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		popular, err := a.History.Popular(ctx, n)
		if err != nil {
			return err
		}
		for i, p := range popular {
			if p.Count > 0 {
				fmt.Printf("%2d. %s (%d)\n", i+1, p.Query, p.Count)
			} else {
				fmt.Printf("%2d. %s\n", i+1, p.Query)
			}
		}
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the question history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		jsonOutput, _ := cmd.Flags().GetBool("json")

		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		stats, err := a.History.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}

		fmt.Printf("Total questions:  %d\n", stats.TotalQueries)
		fmt.Printf("Unique questions: %d\n", stats.UniqueQueries)
		fmt.Printf("Answered:         %d\n", stats.Answered)
		for lang, n := range stats.ByLanguage {
			fmt.Printf("  %-10s %d\n", lang, n)
		}
		if len(stats.TopQueries) > 0 {
			fmt.Println("\nTop questions:")
			for i, p := range stats.TopQueries {
				fmt.Printf("%2d. %s (%d)\n", i+1, p.Query, p.Count)
			}
		}
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete questions older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		days, _ := cmd.Flags().GetInt("days")

		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		n, err := a.History.Prune(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d questions older than %d days\n", n, days)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of questions to list")
	historyCmd.Flags().String("language", "", "only questions in this language (korean, english)")
	historyCmd.Flags().Int("days", 0, "only questions from the last N days")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	historyPopularCmd.Flags().Int("limit", history.DefaultPopularLimit, "number of questions to show")
	historyStatsCmd.Flags().Bool("json", false, "output as JSON")
	historyPruneCmd.Flags().Int("days", int(history.DefaultRetention/(24*time.Hour)), "retention in days")

	historyCmd.AddCommand(historyPopularCmd, historyStatsCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

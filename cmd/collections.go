package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the manual collections and their sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		jsonOutput, _ := cmd.Flags().GetBool("json")
		initialize, _ := cmd.Flags().GetBool("init")

		a, err := openApp(ctx, false, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if initialize {
			if err := a.Router.InitializeCollections(ctx, a.Embeddings.Dimensions(), false); err != nil {
				return err
			}
		}

		stats, err := a.Router.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}
		if len(stats) == 0 {
			fmt.Println("No collections yet. Run `crmrag process` or `crmrag collections --init`.")
			return nil
		}

		fmt.Printf("Vector store: %s\n\n", a.Store.Name())
		total := 0
		for _, s := range stats {
			if s.Error != "" {
				fmt.Printf("  %-20s error: %s\n", s.Name, s.Error)
				continue
			}
			fmt.Printf("  %-20s %6d points  (dim %d, %s)\n", s.Name, s.PointsCount, s.VectorSize, s.Distance)
			total += s.PointsCount
		}
		fmt.Printf("\n  Total: %d points\n", total)
		return nil
	},
}

func init() {
	collectionsCmd.Flags().Bool("init", false, "create missing collections first")
	collectionsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(collectionsCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize crmrag configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose the model provider, chunking strategy and vector store, and writes a .crmrag.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("\nNext: put manuals in %s and run `crmrag process`.\n", cfg.Paths.InputDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

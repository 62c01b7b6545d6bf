package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "crmrag",
	Short: "Question answering over CRM user manuals",
	Long: `crmrag turns CRM user manuals into type and language partitioned vector
collections and answers questions about the CRM system from them, citing
the manual passages each answer is based on.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is normal; keys may come from the environment.
		_ = godotenv.Load()
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.FileName, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

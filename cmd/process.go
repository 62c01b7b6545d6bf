package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process [file-or-folder]",
	Short: "Parse, chunk, embed and store CRM manuals",
	Long: `Processes one manual or every manual in a folder: extracts metadata from the
file name, parses the text, chunks it, embeds the chunks and stores them in
the crm_{type}_{lang} collection the manual belongs to. Unchanged files are
skipped unless --force is given. Defaults to paths.input_dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().String("strategy", "", "chunking strategy: fixed, recursive, semantic or token (overrides config)")
	processCmd.Flags().Bool("force", false, "reprocess files that have not changed")
	processCmd.Flags().Bool("no-save", false, "do not write intermediate chunk files")
	processCmd.Flags().Bool("add-context", false, "prefix each chunk with its neighbours' text")
	processCmd.Flags().Bool("json", false, "print the statistics as JSON")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	a, err := openApp(ctx, false, jsonOutput)
	if err != nil {
		return err
	}
	defer closeApp(a)

	opts, err := a.PipelineOptions()
	if err != nil {
		return err
	}
	if s, _ := cmd.Flags().GetString("strategy"); s != "" {
		if opts.Strategy, err = chunker.ParseStrategy(s); err != nil {
			return err
		}
	}
	opts.Force, _ = cmd.Flags().GetBool("force")
	if noSave, _ := cmd.Flags().GetBool("no-save"); noSave {
		opts.SaveIntermediate = false
	}
	if addContext, _ := cmd.Flags().GetBool("add-context"); addContext {
		opts.AddContext = true
	}

	target := a.Config.Paths.InputDir
	if len(args) == 1 {
		target = args[0]
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("reading %s: %w", target, err)
	}

	if !info.IsDir() {
		stats, err := a.Pipeline.ProcessDocument(ctx, target, opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}
		printDocumentStats(stats)
		return nil
	}

	report, err := a.Pipeline.ProcessFolder(ctx, target, opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(report)
	}

	fmt.Println()
	fmt.Println("Processing Summary")
	fmt.Println("==================")
	fmt.Printf("  Documents:    %d\n", report.TotalDocuments)
	fmt.Printf("  Successful:   %d\n", report.Successful)
	fmt.Printf("  Failed:       %d\n", report.Failed)
	fmt.Printf("  Total chunks: %d\n", report.TotalChunks())
	fmt.Printf("  Time:         %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Report:       %s\n", filepath.Join(a.Pipeline.OutputDir(), pipeline.ReportFile))
	for _, s := range report.Statistics {
		if s.Skipped {
			fmt.Printf("  - %s: unchanged, skipped\n", s.SourceFile)
			continue
		}
		fmt.Printf("  - %s: %d chunks -> %s\n", s.SourceFile, s.TotalChunks, s.CollectionName)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(os.Stderr, "  ! %s: %s\n", e.File, e.Error)
	}
	return nil
}

func printDocumentStats(s *pipeline.DocumentStats) {
	if s.Skipped {
		fmt.Printf("%s is unchanged; use --force to reprocess it.\n", s.SourceFile)
		return
	}
	fmt.Printf("Processed %s\n", s.SourceFile)
	fmt.Printf("  Document:   %s (%s, %s)\n", s.DocumentID, s.Type, s.Language)
	fmt.Printf("  Pages:      %d\n", s.TotalPages)
	fmt.Printf("  Characters: %d\n", s.TotalChars)
	fmt.Printf("  Chunks:     %d\n", s.TotalChunks)
	fmt.Printf("  Collection: %s\n", s.CollectionName)
	fmt.Printf("  Time:       %.2fs\n", s.ProcessingTimeSeconds)
}

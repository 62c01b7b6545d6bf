package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Search the manuals without generating an answer",
	Long: `Embeds the question and searches the collections of its language with the
configured retrieval policy. With --type or --language the given partitions
are searched instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", 0, "maximum number of results (default retrieval.final_top_k)")
	queryCmd.Flags().String("type", "", "restrict to one manual type: account, meeting, order, common")
	queryCmd.Flags().String("language", "", "restrict to one language: ko, en")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queryText := args[0]

	limit, _ := cmd.Flags().GetInt("limit")
	typeFilter, _ := cmd.Flags().GetString("type")
	langFilter, _ := cmd.Flags().GetString("language")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(ctx, false, true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if limit <= 0 {
		limit = a.Retriever.Policy().FinalTopK
	}

	var results []vectordb.SearchResult
	if typeFilter == "" && langFilter == "" {
		ret, err := a.Retriever.Retrieve(ctx, queryText)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		results = ret.Results
		if verbose {
			fmt.Printf("Language: %s\n", ret.Language)
		}
	} else {
		vec, err := a.Embeddings.EmbedText(ctx, queryText)
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}
		results, err = a.Router.SearchAllCollections(ctx, vec, limit, langFilter, typeFilter)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}

	if jsonOutput {
		return printQueryResultsJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	printQueryResultsTable(results)
	return nil
}

type queryResultJSON struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Collection string  `json:"collection"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Section    string  `json:"section,omitempty"`
	Text       string  `json:"text"`
}

func printQueryResultsJSON(results []vectordb.SearchResult) error {
	out := make([]queryResultJSON, 0, len(results))
	for i, r := range results {
		out = append(out, queryResultJSON{
			Rank:       i + 1,
			Score:      r.Score,
			Collection: r.Metadata.String(router.MetadataCollection),
			DocumentID: r.Metadata.String(chunker.KeyDocumentID),
			ChunkID:    r.ChunkID,
			Section:    r.Metadata.String(chunker.KeySectionTitle),
			Text:       r.Text,
		})
	}
	return printJSON(out)
}

func printQueryResultsTable(results []vectordb.SearchResult) {
	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		section := ""
		if s := r.Metadata.String(chunker.KeySectionTitle); s != "" {
			section = fmt.Sprintf(" (%s)", s)
		}
		fmt.Printf("  %d. [%.3f] %s%s\n", i+1, r.Score, r.Metadata.String(chunker.KeyDocumentID), section)
		fmt.Printf("     Collection: %s\n", r.Metadata.String(router.MetadataCollection))
		fmt.Printf("     %s\n\n", truncate(r.Text, 120))
	}
}

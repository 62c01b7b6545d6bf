package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/history"
	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

const defaultLimit = 5

// handleSearchManuals searches the language partitions of the query with the
// retrieval policy, or the requested type and language partitions when
// either filter is given.
func (s *Server) handleSearchManuals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}

	limit := request.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	docType := request.GetString("type", "")
	language := request.GetString("language", "")

	var results []vectordb.SearchResult
	if docType == "" && language == "" {
		if s.deps.Retriever == nil {
			return mcp.NewToolResultError("search is not configured"), nil
		}
		ret, err := s.deps.Retriever.Retrieve(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		results = ret.Results
	} else {
		if s.deps.Embedder == nil || s.deps.Router == nil {
			return mcp.NewToolResultError("search is not configured"), nil
		}
		vecs, err := s.deps.Embedder.Embed(ctx, []string{query})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("embedding query failed: %v", err)), nil
		}
		results, err = s.deps.Router.SearchAllCollections(ctx, vecs[0], limit, language, docType)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The manuals may not be processed yet. Run `crmrag process` to index them."), nil
	}
	return mcp.NewToolResultText(formatSearchResults(results)), nil
}

func (s *Server) handleAskManual(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	if s.deps.Assistant == nil {
		return mcp.NewToolResultError("LLM provider not configured"), nil
	}

	reply, err := s.deps.Assistant.Ask(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("question failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatReply(reply)), nil
}

func (s *Server) handleListCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Router == nil {
		return mcp.NewToolResultError("vector store is not configured"), nil
	}
	stats, err := s.deps.Router.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing collections failed: %v", err)), nil
	}
	if len(stats) == 0 {
		return mcp.NewToolResultText("No collections. Run `crmrag process` to create them."), nil
	}
	return mcp.NewToolResultText(formatCollections(stats)), nil
}

func (s *Server) handlePopularQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.History == nil {
		return mcp.NewToolResultError("query history is not configured"), nil
	}
	limit := request.GetInt("limit", history.DefaultPopularLimit)
	popular, err := s.deps.History.Popular(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading history failed: %v", err)), nil
	}

	var sb strings.Builder
	for i, p := range popular {
		fmt.Fprintf(&sb, "%d. %s", i+1, p.Query)
		if p.Count > 0 {
			fmt.Fprintf(&sb, " (%d)", p.Count)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// formatSearchResults renders passages for AI agent consumption.
func formatSearchResults(results []vectordb.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n", len(results))

	for i, r := range results {
		fmt.Fprintf(&sb, "\n--- Result %d ---\n", i+1)
		if id := r.Metadata.String(chunker.KeyDocumentID); id != "" {
			fmt.Fprintf(&sb, "Document: %s\n", id)
		}
		if col := r.Metadata.String(router.MetadataCollection); col != "" {
			fmt.Fprintf(&sb, "Collection: %s\n", col)
		}
		if title := r.Metadata.String(chunker.KeySectionTitle); title != "" {
			fmt.Fprintf(&sb, "Section: %s\n", title)
		}
		fmt.Fprintf(&sb, "Score: %.3f\n", r.Score)
		sb.WriteString("\n")
		sb.WriteString(r.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatReply(reply *rag.Reply) string {
	var sb strings.Builder
	sb.WriteString(reply.Answer.Answer)
	sb.WriteString("\n")
	if len(reply.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for _, src := range reply.Sources {
			fmt.Fprintf(&sb, "[%d] %s - %s (score %.3f)\n", src.Index, src.Type, src.DocumentID, src.Score)
		}
	}
	return sb.String()
}

func formatCollections(stats []router.CollectionStats) string {
	var sb strings.Builder
	total := 0
	for _, c := range stats {
		if c.Error != "" {
			fmt.Fprintf(&sb, "%s: error: %s\n", c.Name, c.Error)
			continue
		}
		fmt.Fprintf(&sb, "%s: %d points\n", c.Name, c.PointsCount)
		total += c.PointsCount
	}
	fmt.Fprintf(&sb, "Total: %d points in %d collections\n", total, len(stats))
	return sb.String()
}

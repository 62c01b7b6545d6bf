package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchManualsTool = mcp.NewTool("search_manuals",
	mcp.WithDescription("Search the CRM user manuals semantically. Returns the best matching passages with their source document and score."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Question or keywords, in Korean or English"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of passages to return (default 5)"),
	),
	mcp.WithString("type",
		mcp.Description("Restrict the search to one manual type"),
		mcp.Enum("account", "meeting", "order", "common"),
	),
	mcp.WithString("language",
		mcp.Description("Restrict the search to one language; detected from the query when omitted"),
		mcp.Enum("ko", "en"),
	),
)

var askManualTool = mcp.NewTool("ask_manual",
	mcp.WithDescription("Answer a question about the CRM system from the manuals, with numbered source citations."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question, in Korean or English"),
	),
)

var listCollectionsTool = mcp.NewTool("list_collections",
	mcp.WithDescription("List the manual collections with their point counts."),
)

var popularQueriesTool = mcp.NewTool("popular_queries",
	mcp.WithDescription("List the most frequently asked questions."),
	mcp.WithNumber("limit",
		mcp.Description("Number of questions to return (default 5)"),
	),
)

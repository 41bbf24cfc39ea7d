// Package mcp provides a Model Context Protocol server for recall.
//
// It exposes the retrieval operations (context search, verbatim proof,
// history, rules, documentation and project files), single-file index
// updates and classification analytics as MCP tools, and index statistics
// and the recent conversation as MCP resources. The server is served over
// stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/recall/internal/analytics"
	"github.com/hurttlocker/recall/internal/maintain"
	"github.com/hurttlocker/recall/internal/recall"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine     *recall.Engine
	Maintainer *maintain.Coordinator // optional, enables recall_update
	Analytics  *analytics.Analyzer   // optional, enables recall_classified
	Version    string
}

// NewServer creates a configured MCP server with all recall tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Recall",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerSearchTool(s, cfg.Engine)
	registerVerbatimTool(s, cfg.Engine)
	registerHistoryTool(s, cfg.Engine)
	registerRulesTool(s, cfg.Engine)
	registerReadmesTool(s, cfg.Engine)
	registerTechDocsTool(s, cfg.Engine)
	registerProjectFilesTool(s, cfg.Engine)
	registerLocateTool(s, cfg.Engine)
	if cfg.Maintainer != nil {
		registerUpdateTool(s, cfg.Maintainer)
	}
	if cfg.Analytics != nil {
		registerClassifiedTool(s, cfg.Analytics)
	}

	registerStatsResource(s, cfg.Engine)
	registerRecentResource(s, cfg.Engine)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerSearchTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_search",
		mcp.WithDescription("Search long-term memory by meaning. Raw conversation fragments are replaced by their consolidated summaries, and results matching the detected intent rank higher."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithString("subject",
			mcp.Description("Detected subject (SecondMind, Setup, Script, File, General)"),
		),
		mcp.WithString("action",
			mcp.Description("Detected action (Do, Think, Speak, Code, Debug)"),
		),
		mcp.WithString("category",
			mcp.Description("Detected category (Plan, Test, Configure, Document, ...)"),
		),
		mcp.WithBoolean("include_rules",
			mcp.Description("Also return semantically related rules (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		var intent *recall.Intent
		subject := req.GetString("subject", "")
		action := req.GetString("action", "")
		category := req.GetString("category", "")
		if subject != "" || action != "" || category != "" {
			intent, _ = recall.NewIntent(query, subject, action, category)
		}

		var opts []recall.SearchOption
		if req.GetBool("include_rules", false) {
			opts = append(opts, recall.WithRules())
		}
		res, err := engine.ContextSearch(ctx, query, intent, opts...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}
		return jsonResult(res)
	})
}

func registerVerbatimTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_verbatim",
		mcp.WithDescription("Prove that an exact phrase was said. Returns only history records containing the phrase byte for byte (case and punctuation included)."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("phrase",
			mcp.Required(),
			mcp.Description("The exact phrase to find"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		phrase, err := req.RequireString("phrase")
		if err != nil {
			return mcp.NewToolResultError("phrase is required"), nil
		}
		res, err := engine.Verbatim(ctx, phrase)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("verbatim error: %v", err)), nil
		}
		return jsonResult(res)
	})
}

func registerHistoryTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_history",
		mcp.WithDescription("Return the most recent interactions in chronological order, each replaced by its consolidated summary when one exists."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("limit",
			mcp.Description("Number of interactions (default: 5, max: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := engine.History(ctx, limitArg(req, 0, 50))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history error: %v", err)), nil
		}
		return jsonResult(res)
	})
}

func registerRulesTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_rules",
		mcp.WithDescription("Load governance rules, by file tag, by semantic similarity to a query, or both."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("tag",
			mcp.Description("Rule file tag, matched against file names"),
		),
		mcp.WithString("query",
			mcp.Description("Text to find semantically related rules for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum semantic rules (default: 3)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tag := strings.TrimSpace(req.GetString("tag", ""))
		query := strings.TrimSpace(req.GetString("query", ""))
		if tag == "" && query == "" {
			return mcp.NewToolResultError("tag or query is required"), nil
		}

		var tagged, semantic []recall.MemorySnippet
		if tag != "" {
			var err error
			tagged, err = engine.Rules(ctx, tag)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("rules error: %v", err)), nil
			}
		}
		if query != "" {
			semantic = engine.SemanticRules(ctx, query, limitArg(req, 0, 20))
		}
		return jsonResult(nonNil(recall.Merge(tagged, semantic)))
	})
}

func registerReadmesTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_readmes",
		mcp.WithDescription("Return the README_<topic>.md files whose topic words all appear in the prompt."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The user prompt"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError("prompt is required"), nil
		}
		readmes, err := engine.Readmes(ctx, prompt)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("readme error: %v", err)), nil
		}
		return jsonResult(nonNil(readmes))
	})
}

func registerTechDocsTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_techdocs",
		mcp.WithDescription("Return technical manuals whose file name contains the pattern."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("File name fragment"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pattern, err := req.RequireString("pattern")
		if err != nil {
			return mcp.NewToolResultError("pattern is required"), nil
		}
		docs, err := engine.TechDocs(ctx, pattern)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("techdocs error: %v", err)), nil
		}
		return jsonResult(nonNil(docs))
	})
}

func registerProjectFilesTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_project_files",
		mcp.WithDescription("Read the project's own Python sources and YAML/CI configuration matching a pattern. Backups, logs, caches and env files are never returned."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Locator search pattern"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pattern, err := req.RequireString("pattern")
		if err != nil {
			return mcp.NewToolResultError("pattern is required"), nil
		}
		res, err := engine.ProjectFiles(ctx, pattern)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("project files error: %v", err)), nil
		}
		return jsonResult(res)
	})
}

func registerLocateTool(s *server.MCPServer, engine *recall.Engine) {
	tool := mcp.NewTool("recall_locate",
		mcp.WithDescription("Find physical file paths inside the project root, excluding VCS, virtualenv and dependency folders."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("File name or pattern"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pattern, err := req.RequireString("pattern")
		if err != nil {
			return mcp.NewToolResultError("pattern is required"), nil
		}
		paths, err := engine.LocatePhysical(ctx, pattern)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("locate error: %v", err)), nil
		}
		if paths == nil {
			paths = []string{}
		}
		return jsonResult(paths)
	})
}

func registerUpdateTool(s *server.MCPServer, m *maintain.Coordinator) {
	tool := mcp.NewTool("recall_update",
		mcp.WithDescription("Index or re-index one memory file. Failures are reported in the outcome, never raised."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path of the memory file"),
		),
		mcp.WithString("memory_type",
			mcp.Description("Memory type (history, persistent, ...). Derived from the path when empty."),
		),
		mcp.WithString("content",
			mcp.Description("Text to index instead of the file's flattened content"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		content := strings.ReplaceAll(req.GetString("content", ""), "\x00", "")
		out := m.UpdateFile(ctx, path, req.GetString("memory_type", ""), content)
		return jsonResult(out)
	})
}

func registerClassifiedTool(s *server.MCPServer, a *analytics.Analyzer) {
	tool := mcp.NewTool("recall_classified",
		mcp.WithDescription("List past interactions by classification (subject, action, category, tags) rather than content, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("subject", mcp.Description("Subject filter")),
		mcp.WithString("action", mcp.Description("Action filter")),
		mcp.WithString("category", mcp.Description("Category filter")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; any match")),
		mcp.WithNumber("since_days", mcp.Description("Only interactions from the last N days")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default: 20, max: 1000)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := analytics.Filter{
			Subject:  req.GetString("subject", ""),
			Action:   req.GetString("action", ""),
			Category: req.GetString("category", ""),
			Limit:    limitArg(req, 0, analytics.SummaryLimit),
		}
		for _, t := range strings.Split(req.GetString("tags", ""), ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
		if days := req.GetFloat("since_days", 0); days > 0 {
			f.Since = time.Now().Add(-time.Duration(days * float64(24*time.Hour)))
		}

		entries, err := a.Search(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("classified search error: %v", err)), nil
		}
		if entries == nil {
			entries = []analytics.Entry{}
		}
		return jsonResult(entries)
	})
}

// --- Helpers ---

// limitArg reads the optional "limit" argument, capped at max. Zero means
// the operation's default.
func limitArg(req mcp.CallToolRequest, def, max int) int {
	v, err := req.RequireFloat("limit")
	if err != nil {
		return def
	}
	limit := int(v)
	if limit > max {
		limit = max
	}
	if limit < 0 {
		return def
	}
	return limit
}

func nonNil(s []recall.MemorySnippet) []recall.MemorySnippet {
	if s == nil {
		return []recall.MemorySnippet{}
	}
	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

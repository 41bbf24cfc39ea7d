package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/recall/internal/recall"
)

var errNoEngine = errors.New("retrieval engine not configured")

func registerStatsResource(s *server.MCPServer, engine *recall.Engine) {
	resource := mcp.NewResource(
		"recall://stats",
		"Index Statistics",
		mcp.WithResourceDescription("Documents indexed per memory type, index size and locator availability."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if engine == nil {
			return nil, errNoEngine
		}
		data, _ := json.MarshalIndent(engine.IndexStats(ctx), "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerRecentResource(s *server.MCPServer, engine *recall.Engine) {
	resource := mcp.NewResource(
		"recall://recent",
		"Recent Exchanges",
		mcp.WithResourceDescription("The last 10 interactions as alternating prompt and response, oldest first."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if engine == nil {
			return nil, errNoEngine
		}
		exchanges := engine.RecentExchanges(ctx, 10)
		if exchanges == nil {
			exchanges = []string{}
		}
		data, _ := json.MarshalIndent(exchanges, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

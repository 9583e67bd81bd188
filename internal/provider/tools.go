// Package provider implements the agroserver capability provider: the MCP
// tool definitions and handlers the router invokes, backed by wttr.in and
// JSONPlaceholder plus a static agricultural information service.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
)

// Tool names must stay in lockstep with the router's capability registry; a
// mismatch surfaces at the router as an unknown-capability error.
const (
	ToolWeather  = "get_current_weather"
	ToolPosts    = "get_placeholder_posts"
	ToolAgriInfo = "get_pesticide_seed_info"

	defaultPostLimit = 5
	defaultAgriQuery = "general information"

	postPreviewLen = 100
)

// ToolRegistrar is the slice of the mcp-go server the provider needs to
// register its tools, so the handlers stay testable without a running
// server.
type ToolRegistrar interface {
	AddTool(tool mcp.Tool, handler mcpGoServer.ToolHandlerFunc)
}

// Tools bundles the tool handlers and their upstream dependency.
type Tools struct {
	upstream *Upstream
	logger   *slog.Logger
}

// NewTools creates the provider tool set.
func NewTools(upstream *Upstream, logger *slog.Logger) *Tools {
	return &Tools{
		upstream: upstream,
		logger:   logger.With("component", "tools"),
	}
}

// Register adds the three capability tools to the server.
func (t *Tools) Register(s ToolRegistrar) {
	s.AddTool(mcp.NewTool(ToolWeather,
		mcp.WithDescription("Get current weather conditions for a specific city or location. Use this when users ask about weather, temperature, or climate."),
		mcp.WithString("city",
			mcp.Required(),
			mcp.Description("Name of the city to get weather for"),
		),
	), t.handleWeather)

	s.AddTool(mcp.NewTool(ToolPosts,
		mcp.WithDescription("Fetch mock blog posts from the JSONPlaceholder API. Use this when users ask about posts, blogs, or articles."),
		mcp.WithNumber("limit",
			mcp.Description("Number of posts to fetch (1-100)"),
			mcp.Min(1),
			mcp.Max(100),
			mcp.DefaultNumber(defaultPostLimit),
		),
	), t.handlePosts)

	s.AddTool(mcp.NewTool(ToolAgriInfo,
		mcp.WithDescription("Get information about pesticides and seeds for agricultural purposes. Use this when users ask about farming, agriculture, pesticides, seeds, crops, or planting."),
		mcp.WithString("query",
			mcp.Description("What the user wants to know about (e.g. 'organic pesticides', 'wheat seeds', 'tomato farming')"),
			mcp.DefaultString(defaultAgriQuery),
		),
	), t.handleAgriInfo)
}

func (t *Tools) handleWeather(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city, err := req.RequireString("city")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.logger.Info("Handling weather lookup", slog.String("city", city))
	report, err := t.upstream.CurrentWeather(ctx, city)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error fetching weather: %v", err)), nil
	}

	formatted := fmt.Sprintf(
		"Current weather in %s:\nTemperature: %s C\nCondition: %s\nHumidity: %s%%\nWind speed: %s km/h",
		report.City, report.TempC, report.Condition, report.Humidity, report.WindKmph,
	)
	return mcp.NewToolResultText(formatted), nil
}

func (t *Tools) handlePosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultPostLimit)

	t.logger.Info("Handling post listing", slog.Int("limit", limit))
	posts, err := t.upstream.Posts(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error fetching posts: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fetched %d blog posts:\n", len(posts))
	for _, p := range posts {
		body := p.Body
		if len(body) > postPreviewLen {
			body = body[:postPreviewLen] + "..."
		}
		fmt.Fprintf(&sb, "\nPost #%d: %s\n%s\n", p.ID, p.Title, body)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) handleAgriInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", defaultAgriQuery)

	t.logger.Info("Handling agriculture info request", slog.String("query", query))
	response := fmt.Sprintf(
		"Welcome to the Pesticide and Seed Information Service!\n\n"+
			"Query: %s\n\n"+
			"Services available:\n"+
			"  - Seed recommendations for different crops\n"+
			"  - Organic and chemical pesticide information\n"+
			"  - Seasonal planting guides\n"+
			"  - Pest identification and treatment\n"+
			"  - Fertilizer recommendations\n"+
			"  - Crop rotation strategies\n\n"+
			"Tip: ask about specific crops, pests, or farming techniques.",
		query,
	)
	return mcp.NewToolResultText(response), nil
}

package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
)

// handleRunAdvisory implements the run_advisory tool
func handleRunAdvisory(advisorService interfaces.AdvisorService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || ticker == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: ticker parameter is required"),
				},
			}, nil
		}

		advisoryRequest := models.AdvisoryRequest{
			Ticker:    ticker,
			Execution: request.GetString("mode", ""),
			Trigger:   models.TriggerMCP,
		}

		for _, name := range request.GetStringSlice("kinds", nil) {
			kind, err := models.ParseAnalysisKind(name)
			if err != nil {
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent(fmt.Sprintf("Error: %v", err)),
					},
				}, nil
			}
			advisoryRequest.Kinds = append(advisoryRequest.Kinds, kind)
		}

		if threshold := request.GetFloat("confidence_threshold", -1); threshold >= 0 {
			advisoryRequest.ConfidenceThreshold = &threshold
		}
		if maxIterations := request.GetInt("max_iterations", -1); maxIterations >= 0 {
			advisoryRequest.MaxIterations = &maxIterations
		}

		if err := advisoryRequest.Validate(); err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Invalid advisory request: %v", err)),
				},
			}, nil
		}

		record, err := advisorService.RunAdvisory(ctx, advisoryRequest)
		if err != nil {
			logger.Error().Err(err).Str("ticker", ticker).Msg("Advisory run failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Advisory error: %v", err)),
				},
			}, nil
		}

		markdown := formatAdvisoryRecord(record)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleGetAdvisory implements the get_advisory tool
func handleGetAdvisory(advisoryStorage interfaces.AdvisoryStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		advisoryID, err := request.RequireString("advisory_id")
		if err != nil || advisoryID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: advisory_id parameter is required"),
				},
			}, nil
		}

		record, err := advisoryStorage.GetAdvisory(ctx, advisoryID)
		if err != nil {
			logger.Error().Err(err).Str("advisory_id", advisoryID).Msg("GetAdvisory failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Lookup error: %v", err)),
				},
			}, nil
		}
		if record == nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Advisory not found: %s", advisoryID)),
				},
			}, nil
		}

		markdown := formatAdvisoryDetail(record)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleListAdvisories implements the list_advisories tool
func handleListAdvisories(advisoryStorage interfaces.AdvisoryStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		records, err := advisoryStorage.ListAdvisories(ctx, interfaces.AdvisoryListOptions{
			Ticker: request.GetString("ticker", ""),
			Limit:  limit,
		})
		if err != nil {
			logger.Error().Err(err).Msg("ListAdvisories failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("List error: %v", err)),
				},
			}, nil
		}

		markdown := formatAdvisoryList(records, limit)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

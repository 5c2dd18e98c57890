package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createRunAdvisoryTool returns the run_advisory tool definition
func createRunAdvisoryTool() mcp.Tool {
	return mcp.NewTool("run_advisory",
		mcp.WithDescription("Run a multi-analyst investment advisory for a ticker and return the banded recommendation with confidence"),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Exchange-qualified ticker (e.g. ASX:CBA, NYSE:AAPL); unqualified tickers use the configured default exchange"),
		),
		mcp.WithArray("kinds",
			mcp.WithStringItems(),
			mcp.Description("Analysis kinds to run: fundamental, valuation, technical (default: all three)"),
		),
		mcp.WithString("mode",
			mcp.Description("Dispatch mode: parallel or sequential (default: configured)"),
		),
		mcp.WithNumber("confidence_threshold",
			mcp.Description("Confidence in [0,1] below which analyses are refined and re-run (default: configured)"),
		),
		mcp.WithNumber("max_iterations",
			mcp.Description("Refinement passes beyond the first dispatch (default: configured)"),
		),
	)
}

// createGetAdvisoryTool returns the get_advisory tool definition
func createGetAdvisoryTool() mcp.Tool {
	return mcp.NewTool("get_advisory",
		mcp.WithDescription("Retrieve a stored advisory record, including its full attempt audit trail"),
		mcp.WithString("advisory_id",
			mcp.Required(),
			mcp.Description("Advisory ID (format: adv_{uuid})"),
		),
	)
}

// createListAdvisoriesTool returns the list_advisories tool definition
func createListAdvisoriesTool() mcp.Tool {
	return mcp.NewTool("list_advisories",
		mcp.WithDescription("List recent advisory records, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum records to return (default: 20, max: 100)"),
		),
		mcp.WithString("ticker",
			mcp.Description("Filter by exchange-qualified ticker"),
		),
	)
}

package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/services/advisor"
	"github.com/ternarybob/consilium/internal/services/analysts"
	"github.com/ternarybob/consilium/internal/services/judgment"
	"github.com/ternarybob/consilium/internal/storage"
)

func main() {
	// Load configuration. CONSILIUM_CONFIG must exist when set; otherwise
	// auto-discover like the main binary and fall back to defaults so the
	// server starts without a config file.
	var configFiles []string
	if configPath := os.Getenv("CONSILIUM_CONFIG"); configPath != "" {
		configFiles = append(configFiles, configPath)
	} else if _, err := os.Stat("consilium.toml"); err == nil {
		configFiles = append(configFiles, "consilium.toml")
	} else if _, err := os.Stat("deployments/consilium.toml"); err == nil {
		configFiles = append(configFiles, "deployments/consilium.toml")
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logger for MCP server (console only, warn level) to avoid
	// cluttering the stdio transport
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	// Initialize storage
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Initialize analysts and the advisor service. No event bus here: tool
	// calls are synchronous and the caller sees the terminal record.
	registry, err := analysts.NewRegistryFromConfig(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build analyst registry")
	}

	advisorService := advisor.NewService(
		&config.Advisor,
		registry,
		judgment.NewService(logger),
		nil,
		storageManager.AdvisoryStorage(),
		logger,
	)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"consilium",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register advisory tools
	mcpServer.AddTool(createRunAdvisoryTool(), handleRunAdvisory(advisorService, logger))
	mcpServer.AddTool(createGetAdvisoryTool(), handleGetAdvisory(storageManager.AdvisoryStorage(), logger))
	mcpServer.AddTool(createListAdvisoriesTool(), handleListAdvisories(storageManager.AdvisoryStorage(), logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}

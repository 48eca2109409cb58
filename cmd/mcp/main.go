// BlockPhantom MCP Server - Exposes wallet risk tools to LLMs over stdio
package main

import (
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/mcpserver"
)

// Version is set by ldflags
var Version = "dev"

func main() {
	// stdout carries the MCP protocol, so logs go to stderr
	logger := logging.NewWithWriter(os.Stderr, envOrDefault("LOG_LEVEL", "info"), "text")

	timeout, err := time.ParseDuration(envOrDefault("BLOCKPHANTOM_TIMEOUT", "30s"))
	if err != nil {
		logger.Error("invalid BLOCKPHANTOM_TIMEOUT", "error", err)
		os.Exit(1)
	}

	cfg := mcpserver.Config{
		APIURL:  envOrDefault("BLOCKPHANTOM_API_URL", "http://localhost:8000"),
		Timeout: timeout,
	}
	logger.Info("starting mcp server", "api_url", cfg.APIURL, "version", Version)

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

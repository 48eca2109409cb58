package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all BlockPhantom tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("blockphantom", version)
	h := NewHandlers(NewAPIClient(cfg))

	s.AddTool(ToolAssessWalletRisk, h.HandleAssessWalletRisk)
	s.AddTool(ToolWalletHistory, h.HandleWalletHistory)
	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolCreateReportPayment, h.HandleCreateReportPayment)
	s.AddTool(ToolPaymentStatus, h.HandlePaymentStatus)
	s.AddTool(ToolListAgents, h.HandleListAgents)
	s.AddTool(ToolServiceHealth, h.HandleServiceHealth)

	return s
}

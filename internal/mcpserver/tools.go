package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the BlockPhantom MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAssessWalletRisk = mcp.NewTool("assess_wallet_risk",
	mcp.WithDescription(
		"Get a risk assessment for an Ethereum or Cardano wallet. "+
			"Returns a score from 1 to 99, a low/medium/high level, and summary statistics of recent transfers. "+
			"When the chain has no data for the wallet the result is synthetic and flagged as demo."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Blockchain of the wallet"),
		mcp.Enum("ethereum", "cardano")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address (0x... for Ethereum, addr1... for Cardano)")),
	mcp.WithBoolean("demo",
		mcp.Description("Return a synthetic assessment without querying the chain")),
)

var ToolWalletHistory = mcp.NewTool("wallet_history",
	mcp.WithDescription(
		"List sample transactions for a wallet. The history is synthetic and meant for previews."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Blockchain of the wallet"),
		mcp.Enum("ethereum", "cardano")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Look up a single transaction by hash and return the provider's raw record."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Blockchain of the transaction"),
		mcp.Enum("ethereum", "cardano")),
	mcp.WithString("hash",
		mcp.Required(),
		mcp.Description("Transaction hash (0x-prefixed for Ethereum, 64 hex characters for Cardano)")),
)

var ToolCreateReportPayment = mcp.NewTool("create_report_payment",
	mcp.WithDescription(
		"Open a Masumi payment for a wallet's PDF risk report. "+
			"The response includes the payment id and the report download path."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Blockchain of the wallet"),
		mcp.Enum("ethereum", "cardano")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address")),
	mcp.WithString("currency",
		mcp.Description("Payment currency (default ADA)"),
		mcp.Enum("ADA", "USD")),
	mcp.WithNumber("amount",
		mcp.Description("Amount in the currency's smallest unit (default 1000000 lovelace)")),
)

var ToolPaymentStatus = mcp.NewTool("payment_status",
	mcp.WithDescription(
		"Check whether a report payment has been settled."),
	mcp.WithString("payment_id",
		mcp.Required(),
		mcp.Description("Payment id from create_report_payment")),
)

var ToolListAgents = mcp.NewTool("list_agents",
	mcp.WithDescription(
		"Browse agents registered in the Masumi registry."),
	mcp.WithString("name",
		mcp.Description("Filter agents by name")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of agents to return")),
)

var ToolServiceHealth = mcp.NewTool("service_health",
	mcp.WithDescription(
		"Report whether each chain provider is reachable and whether it runs on live or mock data."),
)

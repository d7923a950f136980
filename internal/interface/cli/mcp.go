package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/cmd/cchistory/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start MCP server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server that lets Claude Code
search your conversation history and pull usage statistics.

Configure in Claude Desktop's config file (~/.config/claude/config.json):
  {
    "mcpServers": {
      "cchistory": {
        "command": "cchistory",
        "args": ["serve-mcp"]
      }
    }
  }
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if err := mcp.StartServer(cfg.TranscriptsDir, cfg.CachePath, appVersion); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// runInfo handles the "todomcp info" subcommand.
// It prints general MCP configuration information and, with flags,
// client-specific configuration snippets.
func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	opencode := fs.Bool("opencode", false, "show OpenCode MCP client configuration")
	claude := fs.Bool("claude", false, "show Claude Desktop MCP client configuration")
	cursor := fs.Bool("cursor", false, "show Cursor MCP client configuration")
	fs.Parse(args)

	switch {
	case *opencode:
		printOpenCodeConfig()
	case *claude:
		printClaudeConfig()
	case *cursor:
		printCursorConfig()
	default:
		printGeneralInfo()
	}
}

func printGeneralInfo() {
	fmt.Fprintf(os.Stdout, `todomcp %s — multi-tenant to-do list MCP server

todomcp is a Model Context Protocol (MCP) server that lets an AI
assistant create, list, complete, update, and delete to-do tasks on
behalf of an authenticated caller. Every task is scoped to its owner —
no caller can see or modify another caller's tasks.

TRANSPORT MODES

  stdio (default)
    Communicates over stdin/stdout using JSON-RPC 2.0. Used when launched
    as a subprocess by an MCP client.

    Requires: TODOMCP_TOKEN (JWT bearer token identifying the caller)

  http
    Runs as a standalone HTTP server (MCP Streamable HTTP transport,
    spec 2025-03-26). Clients send their own JWT bearer token in each
    request; it is verified on every call, not just once at startup.

    Endpoint:      POST /mcp
    Health check:  GET /health
    Default port:  8787

TOOLS (5)

  add_task        Create a task (title, description, priority, tags)
  list_tasks       List tasks, filtered by status/priority/tags/search, sorted
  complete_task    Toggle a task's completed status
  update_task      Change one or more fields of an existing task
  delete_task      Permanently remove a task

GETTING STARTED

  1. Obtain a JWT bearer token for the caller you want to act as.
  2. Set TODOMCP_TOKEN (stdio) or send it as the Authorization header
     (http).
  3. Call add_task to create your first task, then list_tasks to see it.

CLIENT CONFIGURATION

  To see configuration for a specific MCP client, run:

    todomcp info --opencode    OpenCode (.opencode.json)
    todomcp info --claude      Claude Desktop (claude_desktop_config.json)
    todomcp info --cursor      Cursor (.cursor/mcp.json)
`, Version)
}

func printOpenCodeConfig() {
	printStdioConfig("OpenCode", ".opencode.json or opencode.json", `{
  "mcpServers": {
    "todomcp": {
      "command": "todomcp",
      "env": {
        "TODOMCP_TOKEN": "your.jwt.token"
      }
    }
  }
}`)

	printHTTPConfig("OpenCode", ".opencode.json or opencode.json", `{
  "mcpServers": {
    "todomcp": {
      "type": "streamable-http",
      "url": "http://your-todomcp-server:8787/mcp",
      "headers": {
        "Authorization": "Bearer your.jwt.token"
      }
    }
  }
}`)
}

func printClaudeConfig() {
	printStdioConfig("Claude Desktop", "claude_desktop_config.json", `{
  "mcpServers": {
    "todomcp": {
      "command": "todomcp",
      "env": {
        "TODOMCP_TOKEN": "your.jwt.token"
      }
    }
  }
}`)

	printHTTPConfig("Claude Desktop", "claude_desktop_config.json", `{
  "mcpServers": {
    "todomcp": {
      "type": "streamable-http",
      "url": "http://your-todomcp-server:8787/mcp",
      "headers": {
        "Authorization": "Bearer your.jwt.token"
      }
    }
  }
}`)
}

func printCursorConfig() {
	printStdioConfig("Cursor", ".cursor/mcp.json", `{
  "mcpServers": {
    "todomcp": {
      "command": "todomcp",
      "env": {
        "TODOMCP_TOKEN": "your.jwt.token"
      }
    }
  }
}`)

	printHTTPConfig("Cursor", ".cursor/mcp.json", `{
  "mcpServers": {
    "todomcp": {
      "type": "streamable-http",
      "url": "http://your-todomcp-server:8787/mcp",
      "headers": {
        "Authorization": "Bearer your.jwt.token"
      }
    }
  }
}`)
}

func printStdioConfig(client, file, config string) {
	fmt.Fprintf(os.Stdout, `%s — stdio mode
%s

Add to %s:

%s

TODOMCP_TOKEN is a JWT identifying the caller. todomcp runs as a
subprocess — no server needed.

`, client, strings.Repeat("─", len(client)+14), file, config)
}

func printHTTPConfig(client, file, config string) {
	fmt.Fprintf(os.Stdout, `%s — HTTP mode (remote server)
%s

Add to %s:

%s

The Authorization header carries the caller's JWT; it is verified on
every request.

`, client, strings.Repeat("─", len(client)+30), file, config)
}

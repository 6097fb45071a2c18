package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

type claudeServerEntry struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	AutoStart bool     `json:"autoStart"`
}

type claudeConfig struct {
	MCPServers map[string]claudeServerEntry `json:"mcpServers"`
}

// cmdInitClaude writes the stanza Claude Desktop needs to spawn this binary
// as a stdio MCP server.
func cmdInitClaude(args []string) int {
	fs := flag.NewFlagSet("init-claude", flag.ContinueOnError)
	output := fs.String("output", "claude_desktop_config.json", "where to write the stanza")
	name := fs.String("name", "toolrack", "server name inside mcpServers")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	command := "toolrack"
	if execPath, err := os.Executable(); err == nil {
		command = execPath
	}

	if !*force {
		if _, err := os.Stat(*output); err == nil {
			return fail(fmt.Errorf("%s exists, pass --force to overwrite", *output))
		}
	}

	stanza := claudeConfig{MCPServers: map[string]claudeServerEntry{
		*name: {Command: command, Args: []string{"serve", "--stdio"}, AutoStart: true},
	}}
	data, err := json.MarshalIndent(stanza, "", "  ")
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(*output, append(data, '\n'), 0o644); err != nil {
		return fail(err)
	}

	fmt.Printf("wrote %s; merge it into your Claude Desktop configuration\n", *output)
	return 0
}

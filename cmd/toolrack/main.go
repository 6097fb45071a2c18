// Command toolrack exposes a tool catalog over MCP-style JSON-RPC. The
// serve subcommand runs the server on the configured transports; the client
// subcommands talk to a running socket daemon.
package main

import (
	"fmt"
	"os"

	"github.com/toolrack/toolrack/pkg/version"
)

const usageText = `toolrack serves a tool catalog over JSON-RPC and searches it.

Usage:
  toolrack <command> [flags]

Commands:
  serve        run the server on the configured transports
  tools        list the tools of the running daemon
  call         invoke one tool through the running daemon
  search       rank the daemon's tools against a query
  ping         check that the running daemon answers
  daemon       start, stop, or inspect the background daemon
  init-claude  write a Claude Desktop mcpServers stanza
  version      print version information

Run "toolrack <command> -h" for the command's flags.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return 2
	}

	switch args[0] {
	case "serve":
		return cmdServe(args[1:])
	case "tools":
		return cmdTools(args[1:])
	case "call":
		return cmdCall(args[1:])
	case "search":
		return cmdSearch(args[1:])
	case "ping":
		return cmdPing(args[1:])
	case "daemon":
		return cmdDaemon(args[1:])
	case "init-claude":
		return cmdInitClaude(args[1:])
	case "version":
		fmt.Printf("toolrack %s (protocol %s)\n", version.Version, version.ProtocolVersion)
		return 0
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "toolrack: unknown command %q\n\n%s", args[0], usageText)
		return 2
	}
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "toolrack:", err)
	return 1
}

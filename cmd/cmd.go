// Package cmd provides the ragdeck CLI commands.
//
// Commands:
//   - tui: Interactive dashboard (documents, chunks, chat) with Bubble Tea
//   - docs: List documents in the backend store
//   - upload: Upload a file and wait for its ingestion
//   - ask: One-shot question against the document store
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the ragdeck CLI application.
func Execute() error {
	if len(os.Args) < 2 {
		return runTUI()
	}

	switch os.Args[1] {
	case "tui":
		return runTUI()
	case "docs":
		return runDocs(os.Args[2:])
	case "upload":
		return runUpload(os.Args[2:])
	case "ask":
		return runAsk(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("ragdeck - terminal dashboard for a document RAG backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ragdeck [tui]              Start the interactive dashboard")
	fmt.Println("  ragdeck docs               List documents in the store")
	fmt.Println("  ragdeck upload <file>      Upload a file and wait for ingestion")
	fmt.Println("  ragdeck ask <question>     Ask a one-shot question")
	fmt.Println("  ragdeck --version          Show version information")
	fmt.Println("  ragdeck --help             Show this help")
	fmt.Println()
	fmt.Println("Dashboard keys:")
	fmt.Println("  Tab                        Switch pane (documents / chunks / chat)")
	fmt.Println("  u, d, /, r                 Upload, delete, filter, refresh documents")
	fmt.Println("  Enter                      Browse chunks of the selected document")
	fmt.Println("  Esc                        Cancel a streaming answer")
	fmt.Println("  Ctrl+D                     Exit")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  RAGDECK_BASE_URL           Backend URL (default http://localhost:3000)")
	fmt.Println("  RAGDECK_MODEL              Generation model override")
	fmt.Println("  RAGDECK_LOG_LEVEL          debug, info, warn, error")
}

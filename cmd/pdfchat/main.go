// Command pdfchat is the entry point for the PDF chat service. It provides a
// CLI (via Cobra) with an HTTP server for session-based question answering,
// quiz generation, and summarisation over uploaded PDFs.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pdfchat-go/cmd/pdfchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

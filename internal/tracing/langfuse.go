// Package tracing wires opt-in Langfuse tracing into the eino callback chain.
// Every generation the service makes is reported as a trace named after the
// service and tagged with the binary version.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/pdfchat-go/internal/version"
)

// traceName labels every trace emitted by this service.
const traceName = "pdfchat"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. Returns a flush function that must be called
// before process exit to ensure all traces are sent. If Langfuse is not
// configured, the handler and flush function are nil and ok is false.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      traceName,
		Release:   version.Version,
	})

	return handler, flush, true
}

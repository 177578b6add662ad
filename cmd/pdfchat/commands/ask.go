package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfchat-go/internal/engine"
	"github.com/54b3r/pdfchat-go/internal/logging"
)

// NewAskCmd constructs the `pdfchat ask` command, which runs one chat turn
// against local PDFs without starting the server: it creates a session,
// uploads the files, processes them, and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var files []string
	var modeName string
	var numQuestions int
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a one-off question about local PDF files",
		Long: `Answer a question, write a quiz, or summarise local PDF files in one shot.

The question is required for qa mode and optional for quiz and summary,
where it is passed along as additional instructions.

Examples:
  pdfchat ask -f paper.pdf "what dataset did the authors use?"
  pdfchat ask -f ch1.pdf -f ch2.pdf --mode quiz --num-questions 10
  pdfchat ask -f report.pdf --mode summary "focus on the financial results"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if len(files) == 0 {
				return fmt.Errorf("ask: at least one --file is required")
			}
			question := ""
			if len(args) == 1 {
				question = args[0]
			}

			uploads := make([]engine.File, 0, len(files))
			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				uploads = append(uploads, engine.File{Name: filepath.Base(path), Data: data})
			}

			svc, err := buildServices(ctx, log, nil, "disabled")
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer svc.Close()
			defer svc.engine.Close(context.WithoutCancel(ctx))

			id, err := svc.engine.CreateSession(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if _, err := svc.engine.Upload(ctx, id, uploads); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			var opts engine.ProcessOptions
			if cmd.Flags().Changed("chunk-size") {
				opts.ChunkSize = &chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				opts.ChunkOverlap = &chunkOverlap
			}
			if _, err := svc.engine.Process(ctx, id, opts); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			req := engine.ChatRequest{Mode: modeName, Question: question}
			if cmd.Flags().Changed("num-questions") {
				req.NumQuestions = &numQuestions
			}
			resp, err := svc.engine.Chat(ctx, id, req)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
			return err //nolint:wrapcheck // CLI entry point, error goes directly to cobra
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "PDF file to load (repeatable)")
	cmd.Flags().StringVarP(&modeName, "mode", "m", "qa", "Chat mode: qa, quiz, or summary")
	cmd.Flags().IntVarP(&numQuestions, "num-questions", "n", 5, "Number of quiz questions")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Chunk size in characters")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 200, "Chunk overlap in characters")

	return cmd
}

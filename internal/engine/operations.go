package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfchat-go/internal/budget"
	"github.com/54b3r/pdfchat-go/internal/ingestion"
	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/mode"
	"github.com/54b3r/pdfchat-go/internal/rag"
	"github.com/54b3r/pdfchat-go/internal/session"
	"github.com/54b3r/pdfchat-go/internal/store"
)

// DefaultHistoryLimit is the number of turns History returns when n <= 0.
const DefaultHistoryLimit = 20

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = rag.DefaultTopK
	}
	if c.SummaryScope == "" {
		c.SummaryScope = ScopeAuto
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return c
}

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// Upload extracts text from every file and appends the documents to the
// session. If any file fails extraction nothing is added. It returns the
// number of documents added.
func (e *Engine) Upload(ctx context.Context, id string, files []File) (int, error) {
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: no files provided", ErrValidation)
	}
	s, err := e.sessions.Get(id)
	if err != nil {
		return 0, err
	}

	docs := make([]session.Document, 0, len(files))
	for _, f := range files {
		text, err := e.extractor.Extract(ctx, f.Name, f.Data)
		if err != nil {
			return 0, err
		}
		docs = append(docs, session.Document{Name: f.Name, Text: text})
	}
	if err := s.AddDocuments(docs...); err != nil {
		return 0, err
	}

	log := logging.FromContext(ctx)
	for _, d := range docs {
		log.Info("document uploaded",
			slog.String("session_id", id),
			slog.String("document", d.Name),
			slog.Int("chars", len([]rune(d.Text))),
		)
	}
	return len(docs), nil
}

// ProcessOptions overrides the pipeline's chunking defaults for one call.
type ProcessOptions struct {
	ChunkSize    *int
	ChunkOverlap *int
}

// Process builds the session's index from every uploaded document and
// returns the number of chunks indexed.
func (e *Engine) Process(ctx context.Context, id string, opts ProcessOptions) (int, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	n, err := s.Process(ctx, func(ctx context.Context, docs []session.Document) (rag.Index, error) {
		in := make([]ingestion.Document, len(docs))
		for i, d := range docs {
			in[i] = ingestion.Document{Name: d.Name, Text: d.Text}
		}
		idx, err := e.pipeline.Build(ctx, in, ingestion.Options{
			ChunkSize:    opts.ChunkSize,
			ChunkOverlap: opts.ChunkOverlap,
		})
		if errors.Is(err, ingestion.ErrNoText) {
			return nil, fmt.Errorf("%w: %w", session.ErrEmptyDocumentSet, err)
		}
		return idx, err
	})
	if err != nil {
		return 0, err
	}

	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.IndexBuilt(n, elapsed)
	}
	logging.FromContext(ctx).Info("session processed",
		slog.String("session_id", id),
		slog.Int("chunks", n),
		slog.Duration("duration", elapsed),
	)
	return n, nil
}

// ChatRequest is one chat call's input.
type ChatRequest struct {
	// Mode is the wire name of the mode; empty means qa.
	Mode string
	// Question is the user's text.
	Question string
	// NumQuestions is the quiz size; nil means the default.
	NumQuestions *int
}

// ChatResponse is one chat call's output.
type ChatResponse struct {
	Mode   mode.Mode
	Answer string
}

// Chat answers req against the session's index. The mode and its parameters
// are validated before the session is looked up, so a malformed request never
// reaches retrieval or generation. No session lock is held while generating.
func (e *Engine) Chat(ctx context.Context, id string, req ChatRequest) (resp ChatResponse, err error) {
	m, err := mode.Parse(req.Mode)
	if err != nil {
		return ChatResponse{}, err
	}
	params := mode.Params{Question: req.Question, NumQuestions: req.NumQuestions}
	if err := params.Validate(m); err != nil {
		return ChatResponse{}, err
	}
	strategy, err := mode.For(m)
	if err != nil {
		return ChatResponse{}, err
	}

	start := time.Now()
	defer func() {
		if e.observer != nil {
			e.observer.ChatCompleted(m.String(), outcome(err), time.Since(start))
		}
	}()

	s, err := e.sessions.Get(id)
	if err != nil {
		return ChatResponse{}, err
	}

	chunks, err := e.gatherContext(ctx, s, strategy, params)
	if err != nil {
		return ChatResponse{}, err
	}

	answer, err := mode.Run(ctx, strategy, chunks, params, e.generator)
	if err != nil {
		return ChatResponse{}, err
	}

	e.recordTurn(ctx, s, store.Turn{Mode: m.String(), Question: req.Question, Answer: answer})
	return ChatResponse{Mode: m, Answer: answer}, nil
}

// gatherContext selects the chunk texts for the prompt while holding a read
// reference on the session's index, then trims them to the context budget.
func (e *Engine) gatherContext(ctx context.Context, s *session.Session, strategy mode.Strategy, params mode.Params) ([]string, error) {
	fixed := []*schema.Message{schema.UserMessage(strategy.BuildPrompt(nil, params))}
	log := logging.FromContext(ctx)

	var texts []string
	err := s.Retrieve(ctx, func(idx rag.Index) error {
		if strategy.Mode() == mode.Summary && e.cfg.SummaryScope != ScopeTopK {
			all := chunkTexts(idx.Chunks())
			if e.cfg.SummaryScope == ScopeAll || budget.Fits(fixed, all, e.cfg.MaxContextTokens) {
				texts = all
				return nil
			}
			log.Debug("summary context exceeds budget, using top-k retrieval",
				slog.Int("chunks", len(all)),
				slog.Int("max_context_tokens", e.cfg.MaxContextTokens),
			)
		}

		res, err := rag.Retrieve(ctx, strategy.Query(params), idx, e.cfg.TopK, e.embedder)
		if err != nil {
			return err
		}
		texts = res.Texts()
		return nil
	})
	if err != nil {
		return nil, err
	}

	trimmed := budget.TrimChunks(fixed, texts, e.cfg.MaxContextTokens)
	if len(trimmed) < len(texts) {
		log.Warn("context trimmed to fit token budget",
			slog.Int("retrieved", len(texts)),
			slog.Int("kept", len(trimmed)),
		)
	}
	return trimmed, nil
}

// History returns the session's most recent n turns, oldest first.
func (e *Engine) History(ctx context.Context, id string, n int) ([]store.Turn, error) {
	if _, err := e.sessions.Get(id); err != nil {
		return nil, err
	}
	if e.transcripts == nil {
		return []store.Turn{}, nil
	}
	if n <= 0 {
		n = DefaultHistoryLimit
	}
	turns, err := e.transcripts.Recent(ctx, id, n)
	if err != nil {
		return nil, fmt.Errorf("engine: history: %w", err)
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	return turns, nil
}

// recordTurn appends a turn to the transcript. Failures are logged, not
// returned: the answer has already been produced. A session deleted while the
// answer was generated gets no turn; if the delete lands during the append,
// the transcript is purged again so no row outlives the session.
func (e *Engine) recordTurn(ctx context.Context, s *session.Session, turn store.Turn) {
	if e.transcripts == nil || s.Closed() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.transcripts.Append(ctx, s.ID(), turn); err != nil {
		logging.FromContext(ctx).Warn("failed to record chat turn",
			slog.String("session_id", s.ID()),
			slog.Any("error", err),
		)
		return
	}
	// Delete closes the session before purging, so either that purge sees
	// this row or this check sees the close.
	if s.Closed() {
		e.purgeTranscript(ctx, s.ID())
	}
}

func chunkTexts(chunks []rag.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// outcome labels a chat result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, mode.ErrValidation), errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNotReady):
		return "rejected"
	default:
		return "error"
	}
}

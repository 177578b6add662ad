// Package mode implements the request modes a session can be chatted with:
// question answering, quiz generation, and summarization. Each mode builds a
// single prompt from retrieved chunks and calls the generator exactly once.
package mode

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported is returned for a mode string outside the closed set.
	ErrUnsupported = errors.New("mode: unsupported mode")

	// ErrValidation is returned when request parameters are unusable.
	ErrValidation = errors.New("mode: invalid request")
)

// Mode is the closed set of request modes.
type Mode int

const (
	// QA answers a question from the retrieved context.
	QA Mode = iota + 1
	// Quiz generates multiple-choice questions grounded in the context.
	Quiz
	// Summary summarises the context.
	Summary
)

const (
	// DefaultNumQuestions is the quiz size when the request omits it.
	DefaultNumQuestions = 5

	// MaxNumQuestions caps the quiz size so one request cannot ask the model
	// for an unbounded amount of output.
	MaxNumQuestions = 50
)

// String returns the wire name of m.
func (m Mode) String() string {
	switch m {
	case QA:
		return "qa"
	case Quiz:
		return "quiz"
	case Summary:
		return "summary"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Parse converts a wire name to a Mode. Matching ignores case and
// surrounding whitespace; an empty string selects QA.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "qa":
		return QA, nil
	case "quiz":
		return Quiz, nil
	case "summary":
		return Summary, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid values: qa, quiz, summary)", ErrUnsupported, s)
	}
}

// Params carries the per-request inputs a mode may use.
type Params struct {
	// Question is the user's text. Required for QA; optional additional
	// instructions for Summary; optional focus for Quiz.
	Question string

	// NumQuestions is the requested quiz size. Nil means DefaultNumQuestions.
	NumQuestions *int
}

// Questions returns the resolved quiz size.
func (p Params) Questions() int {
	if p.NumQuestions == nil {
		return DefaultNumQuestions
	}
	return *p.NumQuestions
}

// Validate checks p against the requirements of m.
func (p Params) Validate(m Mode) error {
	switch m {
	case QA:
		if strings.TrimSpace(p.Question) == "" {
			return fmt.Errorf("%w: question must not be empty", ErrValidation)
		}
	case Quiz:
		n := p.Questions()
		if n <= 0 {
			return fmt.Errorf("%w: num_questions must be a positive integer, got %d", ErrValidation, n)
		}
		if n > MaxNumQuestions {
			return fmt.Errorf("%w: num_questions must be at most %d, got %d", ErrValidation, MaxNumQuestions, n)
		}
	case Summary:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, m)
	}
	return nil
}

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Strategy builds the prompt for one mode.
type Strategy interface {
	// Mode reports which mode the strategy implements.
	Mode() Mode

	// Query returns the text to retrieve chunks with.
	Query(p Params) string

	// BuildPrompt renders the full prompt from retrieved chunk texts.
	BuildPrompt(chunks []string, p Params) string
}

// For returns the strategy for m.
func For(m Mode) (Strategy, error) {
	switch m {
	case QA:
		return qaStrategy{}, nil
	case Quiz:
		return quizStrategy{}, nil
	case Summary:
		return summaryStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, m)
	}
}

// Run validates p, builds the prompt, and calls gen exactly once. The
// generated text is returned unmodified.
func Run(ctx context.Context, s Strategy, chunks []string, p Params, gen Generator) (string, error) {
	if err := p.Validate(s.Mode()); err != nil {
		return "", err
	}
	answer, err := gen.Generate(ctx, s.BuildPrompt(chunks, p))
	if err != nil {
		return "", fmt.Errorf("mode: %s: %w", s.Mode(), err)
	}
	return answer, nil
}

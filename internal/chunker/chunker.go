// Package chunker splits raw document text into overlapping fixed-size
// windows suitable for embedding.
//
// Sizes are measured in characters (Unicode code points), never bytes, so a
// multi-byte rune is never cut in half at a window boundary.
package chunker

import (
	"errors"
	"fmt"
)

const (
	// DefaultSize is the window length used when the caller does not supply one.
	DefaultSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive windows.
	DefaultOverlap = 200
)

// ErrInvalidConfig is returned when size or overlap cannot produce progress.
var ErrInvalidConfig = errors.New("chunker: invalid configuration")

// Validate reports whether size and overlap form a usable window.
// size must be positive and overlap must lie in [0, size).
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, size)
	}
	return nil
}

// Split cuts text into windows of at most size characters. Each window starts
// size-overlap characters after the previous one, so neighbours share exactly
// overlap characters. The final window always ends at the end of text.
//
// Empty text yields an empty slice and no error.
func Split(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []string{}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, Count(len(runes), size, overlap))
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// Count returns the number of windows Split produces for a text of n
// characters: ceil((n-overlap)/(size-overlap)) for n > 0, else 0.
// It assumes size and overlap already passed Validate.
func Count(n, size, overlap int) int {
	if n <= 0 {
		return 0
	}
	if n <= size {
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}

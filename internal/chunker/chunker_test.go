package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Split("some text", tc.size, tc.overlap)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Split(%d, %d) error = %v, want ErrInvalidConfig", tc.size, tc.overlap, err)
			}
		})
	}
}

func TestSplit_EmptyText(t *testing.T) {
	t.Parallel()

	chunks, err := Split("", 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("want 0 chunks, got %d", len(chunks))
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	text := "Paris is the capital of France."
	chunks, err := Split(text, 1000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("want single chunk %q, got %q", text, chunks)
	}
}

func TestSplit_OverlapIsExact(t *testing.T) {
	t.Parallel()

	chunks, err := Split("abcdefghij", 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"abcd", "cdef", "efgh", "ghij"}
	if len(chunks) != len(want) {
		t.Fatalf("want %v, got %v", want, chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplit_MultiByteRunesNotCut(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é日本", 7)
	chunks, err := Split(text, 5, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk[%d] is not valid UTF-8: %q", i, c)
		}
		if n := utf8.RuneCountInString(c); n > 5 {
			t.Errorf("chunk[%d] has %d runes, want <= 5", i, n)
		}
	}
}

// TestSplit_Properties checks reconstruction, length bound, and chunk count
// over a grid of text lengths and window shapes.
func TestSplit_Properties(t *testing.T) {
	t.Parallel()

	const alphabet = "The quick brown fox jumps over the lazy dog. Ünïcödé 文字.\n"
	shapes := []struct{ size, overlap int }{
		{1, 0}, {2, 1}, {3, 0}, {7, 3}, {10, 9}, {50, 10}, {1000, 200},
	}

	for n := 0; n <= 240; n += 7 {
		var sb strings.Builder
		for sb.Len() < n*4 {
			sb.WriteString(alphabet)
		}
		text := string([]rune(sb.String())[:n])

		for _, sh := range shapes {
			chunks, err := Split(text, sh.size, sh.overlap)
			if err != nil {
				t.Fatalf("n=%d size=%d overlap=%d: %v", n, sh.size, sh.overlap, err)
			}

			if got, want := len(chunks), Count(n, sh.size, sh.overlap); got != want {
				t.Errorf("n=%d size=%d overlap=%d: got %d chunks, want %d", n, sh.size, sh.overlap, got, want)
			}

			var rebuilt strings.Builder
			for i, c := range chunks {
				runes := []rune(c)
				if len(runes) > sh.size {
					t.Errorf("n=%d size=%d: chunk[%d] has %d runes", n, sh.size, i, len(runes))
				}
				if i == 0 {
					rebuilt.WriteString(c)
					continue
				}
				rebuilt.WriteString(string(runes[sh.overlap:]))
			}
			if rebuilt.String() != text {
				t.Errorf("n=%d size=%d overlap=%d: reconstruction mismatch", n, sh.size, sh.overlap)
			}
		}
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, size, overlap, want int
	}{
		{0, 10, 2, 0},
		{1, 10, 2, 1},
		{10, 10, 2, 1},
		{11, 10, 2, 2},
		{18, 10, 2, 2},
		{19, 10, 2, 3},
		{2500, 1000, 200, 3},
	}
	for _, tc := range tests {
		if got := Count(tc.n, tc.size, tc.overlap); got != tc.want {
			t.Errorf("Count(%d, %d, %d) = %d, want %d", tc.n, tc.size, tc.overlap, got, tc.want)
		}
	}
}

package source

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"dbgview/internal/logline"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanChunks)
	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return tokens
}

func TestScanChunks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "newlines",
			input: "a\nb\n",
			want:  []string{"a", "b"},
		},
		{
			name:  "nul terminated",
			input: "a\x00b\x00",
			want:  []string{"a", "b"},
		},
		{
			name:  "trailing partial",
			input: "a\nrest",
			want:  []string{"a", "rest"},
		},
		{
			name:  "empty lines",
			input: "\n\n",
			want:  []string{"", ""},
		},
		{
			name:  "long run is cut",
			input: strings.Repeat("x", MaxChunk+10) + "\n",
			want:  []string{strings.Repeat("x", MaxChunk), strings.Repeat("x", 10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, scanAll(t, tt.input))
		})
	}
}

func TestPipeReader(t *testing.T) {
	src := NewPipeReader(logline.NewTimer(), strings.NewReader("one\ntwo\x00three"), 7, "stdin")
	require.Equal(t, "Piped from stdin", src.Description())

	require.Eventually(t, src.AtEnd, 5*time.Second, 10*time.Millisecond)
	lines := src.GetLines()
	require.Len(t, lines, 3)
	for i, want := range []string{"one\n", "two\n", "three\n"} {
		require.Equal(t, want, lines[i].Message)
		require.Equal(t, 7, lines[i].PID)
		require.Equal(t, "stdin", lines[i].ProcessName)
	}
}

package service

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestClipText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "  hello  ", max: 10, want: "hello"},
		{name: "exact", in: "hello", max: 5, want: "hello"},
		{name: "ascii cut", in: "hello world", max: 8, want: "hello..."},
		{name: "tiny max", in: "hello", max: 2, want: "he"},
		{name: "multibyte cut backs off to rune start", in: "aéééé", max: 5, want: "a..."},
		{name: "multibyte fits after cut", in: "ééééé", max: 7, want: "éé..."},
		{name: "multibyte tiny max", in: "日本語", max: 2, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clipText(tt.in, tt.max)
			require.Equal(t, tt.want, got)
			require.True(t, utf8.ValidString(got))
			require.LessOrEqual(t, len(got), tt.max)
		})
	}
}

package telegram

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain",
			in:   "hello world",
			want: "hello world",
		},
		{
			name: "dots_and_dashes",
			in:   "v1.2-beta",
			want: "v1\\.2\\-beta",
		},
		{
			name: "card_title",
			in:   "Fix bug #42 (login)",
			want: "Fix bug \\#42 \\(login\\)",
		},
		{
			name: "backslash",
			in:   `a\b`,
			want: `a\\b`,
		},
		{
			name: "blank_passthrough",
			in:   "  ",
			want: "  ",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EscapeMarkdownV2(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

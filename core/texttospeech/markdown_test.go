package texttospeech

import "testing"

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Hello there.", want: "Hello there."},
		{name: "link", in: "See [the docs](https://example.com/a_b) now", want: "See the docs now"},
		{name: "emphasis", in: "**bold** and _soft_", want: "bold and soft"},
		{name: "code", in: "run `go test`", want: "run go test"},
		{name: "headings kept", in: "# Title", want: "# Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdown(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

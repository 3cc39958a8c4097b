package crawler

import (
	"strings"
	"testing"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain wheel name unchanged",
			in:   "demo-1.0-py3-none-any.whl",
			want: "demo-1.0-py3-none-any.whl",
		},
		{
			name: "directory components stripped",
			in:   "packages/source/d/demo/demo-1.0.tar.gz",
			want: "demo-1.0.tar.gz",
		},
		{
			name: "backslash components stripped",
			in:   `C:\temp\demo-1.0.zip`,
			want: "demo-1.0.zip",
		},
		{
			name: "compound tar extension kept intact",
			in:   strings.Repeat("a", 60) + "-1.0.tar.gz",
			want: strings.Repeat("a", 40) + ".tar.gz",
		},
		{
			name: "non portable characters removed",
			in:   "de mo!$-1.0.tar.bz2",
			want: "demo-1.0.tar.bz2",
		},
		{
			name: "windows device name escaped",
			in:   "CON.tar.gz",
			want: "_CON.tar.gz",
		},
		{
			name: "lowercase device name escaped",
			in:   "nul.txt",
			want: "_nul.txt",
		},
		{
			name: "only stripped characters falls back to underscore",
			in:   "???",
			want: "_",
		},
		{
			name: "leading dot trimmed",
			in:   ".hidden",
			want: "hidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecureFilename(tt.in); got != tt.want {
				t.Errorf("SecureFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSecureFilename_NeverEmpty(t *testing.T) {
	for _, in := range []string{"", "/", `\`, "...", "___", "a/"} {
		if got := SecureFilename(in); got == "" {
			t.Errorf("SecureFilename(%q) returned empty string", in)
		}
	}
}

package utils

import (
	"path/filepath"
	"testing"
)

func TestOutputPath(t *testing.T) {
	abs, err := filepath.Abs("src")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		in     string
		outDir string
		ext    string
		want   string
	}{
		{"next to input", "src/fib.c", "", ".s", filepath.Join(abs, "fib.s")},
		{"into out dir", "src/fib.c", "build", ".s", filepath.Join("build", "fib.s")},
		{"no extension", "src/fib", "", ".s", filepath.Join(abs, "fib.s")},
		{"dots in name", "src/a.b.c", "out", ".s", filepath.Join("out", "a.b.s")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputPath(tt.in, tt.outDir, tt.ext)
			if err != nil {
				t.Fatalf("OutputPath failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("OutputPath(%q, %q, %q) = %q, want %q", tt.in, tt.outDir, tt.ext, got, tt.want)
			}
		})
	}
}

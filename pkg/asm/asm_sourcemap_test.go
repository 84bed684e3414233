package asm

import (
	"testing"

	"rvcc/pkg/cpu"
)

func TestAssembleSourceMap(t *testing.T) {
	code := `
# Line 2: comment
  li a0, 10      # Line 3
                 # Line 4: empty
label:           # Line 5
  add a0, a0, a1 # Line 6
  .data          # Line 7
  .byte 1        # Line 8: data is not mapped
  .text
  ret            # Line 10
`
	_, sourceMap, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	tests := []struct {
		addr uint64
		line int
	}{
		{cpu.TextBase, 3},
		{cpu.TextBase + 4, 6},
		{cpu.TextBase + 8, 10},
	}
	for _, tc := range tests {
		if got := sourceMap[tc.addr]; got != tc.line {
			t.Errorf("sourceMap[%#x] = %d; want %d", tc.addr, got, tc.line)
		}
	}
	if len(sourceMap) != 3 {
		t.Errorf("sourceMap has %d entries, want 3", len(sourceMap))
	}
}

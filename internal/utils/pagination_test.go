package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntOr(t *testing.T) {
	require.Equal(t, 10, IntOr("", 10))
	require.Equal(t, 42, IntOr("42", 0))
	require.Equal(t, -13, IntOr("-13", 1))
	require.Equal(t, 12, IntOr("0012", 99))
	require.Equal(t, 7, IntOr(" 42", 7), "no trimming")
	require.Equal(t, 5, IntOr("4.2", 5))
	require.Equal(t, -1, IntOr("999999999999999999999999", -1), "overflow")
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		name                     string
		number, size, def, limit int
		want                     Page
		offset                   int
	}{
		{"zero values", 0, 0, 20, 100, Page{1, 20}, 0},
		{"negative page", -3, 5, 20, 100, Page{1, 5}, 0},
		{"third page", 3, 10, 20, 100, Page{3, 10}, 20},
		{"capped size", 2, 500, 20, 100, Page{2, 100}, 100},
		{"no limit", 2, 500, 20, 0, Page{2, 500}, 500},
		{"bad default", 1, 0, 0, 0, Page{1, 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPage(tc.number, tc.size, tc.def, tc.limit)
			require.Equal(t, tc.want, p)
			require.Equal(t, tc.offset, p.Offset())
		})
	}
}

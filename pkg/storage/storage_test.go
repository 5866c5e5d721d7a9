package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEntryName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"tasmax", true},
		{"tasmax_rcp45.csv", true},
		{".climdashignore", true},
		{"..data", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"../x", false},
		{`..\x`, false},
		{"a\x00b", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidEntryName(tt.name), "name %q", tt.name)
	}
}

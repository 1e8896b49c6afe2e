package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSplitPart(t *testing.T) {
	part, err := GetSplitPart("fnSelectDate('2025-05-14');", "'", 1)
	assert.NoError(t, err)
	assert.Equal(t, "2025-05-14", part)

	_, err = GetSplitPart("no-quotes", "'", 1)
	assert.Error(t, err)
}

func TestStripComment(t *testing.T) {
	tests := map[string]string{
		"5":              "5",
		"5 # 월 설정":   "5",
		"30%":            "30",
		"  2025  ":       "2025",
		"#only comment":  "",
		"12 % # trailing": "12",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripComment(in), in)
	}
}

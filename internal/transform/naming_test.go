package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKebab(t *testing.T) {
	tests := map[string]string{
		"heroSection": "hero-section",
		"FAQItems":    "faq-items",
		"Hero":        "hero",
		"hero2Col":    "hero2-col",
		"snake_case":  "snake-case",
		"already-ok":  "already-ok",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Kebab(in), in)
	}
}

func TestDataFileName(t *testing.T) {
	tests := []struct {
		ident string
		want  string
		ok    bool
	}{
		{"heroSectionData", "hero-section.json", true},
		{"featuresData", "features.json", true},
		{"Data", "", false},
		{"metadata", "", false},
		{"heroProps", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ident, func(t *testing.T) {
			got, ok := DataFileName(tt.ident, ".json")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderWelcome(t *testing.T) {
	tests := []struct {
		name      string
		info      WelcomeInfo
		termWidth int
		wantLogo  bool
		wantTexts []string
	}{
		{
			name: "arcade session",
			info: WelcomeInfo{
				Model:      "gpt-4o-mini",
				Provider:   "arcade",
				UserID:     "user@example.com",
				Tools:      3,
				ConfirmAll: true,
				Version:    "1.0.0",
			},
			termWidth: 80,
			wantLogo:  true,
			wantTexts: []string{
				"Welcome to toolgate! Type exit to quit.",
				"version: 1.0.0",
				"model:   gpt-4o-mini",
				"3 tools from arcade",
				"user@example.com",
				"every tool call",
				"tip:",
			},
		},
		{
			name: "dev build with selected tools",
			info: WelcomeInfo{
				Model:     "gpt-4o",
				Provider:  "mcp",
				Tools:     1,
				Confirmed: 1,
				Version:   "dev",
			},
			termWidth: 80,
			wantLogo:  true,
			wantTexts: []string{
				"development",
				"1 tool from mcp",
				"confirm: 1 tool",
				"not configured",
			},
		},
		{
			name:      "narrow terminal",
			info:      WelcomeInfo{Model: "gpt-4o", Provider: "arcade"},
			termWidth: 20,
			wantLogo:  false,
			wantTexts: []string{"Welcome to toolgate!", "no tools"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			RenderWelcome(&buf, tt.info, tt.termWidth)

			output := buf.String()
			for _, text := range tt.wantTexts {
				assert.Contains(t, output, text)
			}
			if tt.wantLogo {
				assert.Contains(t, output, toolgateLogo[1])
			} else {
				assert.NotContains(t, output, toolgateLogo[1])
			}
		})
	}
}

func TestGetTipOfTheDay(t *testing.T) {
	assert.Contains(t, tips, getTipOfTheDay())
}

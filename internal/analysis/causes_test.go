package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCauses(t *testing.T) {
	tests := []struct {
		name     string
		analysis string
		want     []string
	}{
		{
			name:     "basic",
			analysis: "Main Causes:\n- Slow Service\n- rude staff\n",
			want:     []string{"slow service", "rude staff"},
		},
		{
			name:     "no marker",
			analysis: "The customer was unhappy with delivery times.\n- late delivery",
			want:     []string{},
		},
		{
			name:     "empty",
			analysis: "",
			want:     []string{},
		},
		{
			name:     "marker without bullets",
			analysis: "Main Causes:\nnothing to report",
			want:     []string{},
		},
		{
			name:     "preamble and indentation",
			analysis: "Here is the analysis.\n\nMain Causes:\n  - Long Wait Times\n    - Billing Errors \n* not a bullet\n",
			want:     []string{"long wait times", "billing errors"},
		},
		{
			name:     "tab before bullet keeps the dash",
			analysis: "Main Causes:\n\t- Billing Errors\n",
			want:     []string{"- billing errors"},
		},
		{
			name:     "duplicates kept",
			analysis: "Main Causes:\n- Slow Service\n- slow service\n",
			want:     []string{"slow service", "slow service"},
		},
		{
			name:     "trailing dashes stripped",
			analysis: "Main Causes:\n-- Pricing --\n",
			want:     []string{"pricing"},
		},
		{
			name:     "stops at second marker",
			analysis: "Main Causes:\n- first\nMain Causes:\n- second\n",
			want:     []string{"first"},
		},
		{
			name:     "crlf line endings",
			analysis: "Main Causes:\r\n- Slow Service\r\n- Rude Staff\r\n",
			want:     []string{"slow service", "rude staff"},
		},
		{
			name:     "diagnostic text",
			analysis: "rpc error: code = PermissionDenied",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCauses(tt.analysis))
		})
	}
}

func TestExtractCausesIsPure(t *testing.T) {
	text := "Main Causes:\n- Slow Service\n- rude staff\n"
	first := ExtractCauses(text)
	second := ExtractCauses(text)
	assert.Equal(t, first, second)
}

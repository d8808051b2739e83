package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"international with plus", "+15551230000", "15551230000"},
		{"punctuation stripped", "+1 (555) 123-0000", "15551230000"},
		{"local gets country code", "987654321", "51987654321"},
		{"already prefixed", "51987654321", "51987654321"},
		{"local starting with code digits still prefixed", "519876543", "51519876543"},
		{"whatsapp jid digits", "51987654321", "51987654321"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeNumber(tt.raw, "51", 9)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeNumberEmpty(t *testing.T) {
	_, err := NormalizeNumber("abc-def", "51", 9)
	require.Error(t, err)

	_, err = NormalizeNumber("", "51", 9)
	require.Error(t, err)
}

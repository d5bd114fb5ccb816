package cusipmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCIK(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "tab separated",
			header: "SUBJECT COMPANY:\t\n\tCOMPANY DATA:\t\n\t\tCENTRAL INDEX KEY:\t\t\t0000320193",
			want:   "0000320193",
		},
		{
			name:   "space aligned",
			header: "SUBJECT COMPANY:\n    CENTRAL INDEX KEY:        0000320193",
			want:   "0000320193",
		},
		{
			name: "filer listed first",
			header: "FILED BY:\n\t\tCENTRAL INDEX KEY:\t\t\t0001067983\n" +
				"SUBJECT COMPANY:\n\t\tCENTRAL INDEX KEY:\t\t\t0000320193",
			want: "0000320193",
		},
		{
			name: "filer listed after subject",
			header: "SUBJECT COMPANY:\n\t\tCENTRAL INDEX KEY:\t\t\t0000320193\n" +
				"FILED BY:\n\t\tCENTRAL INDEX KEY:\t\t\t0001067983",
			want: "0000320193",
		},
		{
			name:   "no subject company block",
			header: "\t\tCENTRAL INDEX KEY:\t\t\t0000320193",
			want:   "",
		},
		{
			name:   "empty value",
			header: "SUBJECT COMPANY:\n\t\tCENTRAL INDEX KEY:",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCIK(strings.Split(tt.header, "\n")))
		})
	}
}

func TestCIKVariants(t *testing.T) {
	assert.Equal(t, []string{"0000320193", "320193"}, CIKVariants("0000320193"))
	assert.Equal(t, []string{"320193"}, CIKVariants(" 320193 "))
	assert.Equal(t, []string{"0000"}, CIKVariants("0000"))
	assert.Nil(t, CIKVariants(""))
}

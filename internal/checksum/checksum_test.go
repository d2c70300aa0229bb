package checksum

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Stability(t *testing.T) {
	d := civil.Date{Year: 2025, Month: 9, Day: 1}
	base := Row("acc-1", d, 50000, "REF1", "UPI-JOHN DOE-DOEJOHN@BANK")

	tests := []struct {
		name      string
		got       string
		wantEqual bool
	}{
		{"same inputs", Row("acc-1", d, 50000, "REF1", "UPI-JOHN DOE-DOEJOHN@BANK"), true},
		{"narration case", Row("acc-1", d, 50000, "REF1", "upi-john doe-doejohn@bank"), true},
		{"narration whitespace", Row("acc-1", d, 50000, "REF1", "  UPI-JOHN   DOE-DOEJOHN@BANK "), true},
		{"amount changes", Row("acc-1", d, 50001, "REF1", "UPI-JOHN DOE-DOEJOHN@BANK"), false},
		{"reference changes", Row("acc-1", d, 50000, "REF2", "UPI-JOHN DOE-DOEJOHN@BANK"), false},
		{"account changes", Row("acc-2", d, 50000, "REF1", "UPI-JOHN DOE-DOEJOHN@BANK"), false},
		{"date changes", Row("acc-1", civil.Date{Year: 2025, Month: 9, Day: 2}, 50000, "REF1", "UPI-JOHN DOE-DOEJOHN@BANK"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantEqual {
				assert.Equal(t, base, tt.got)
			} else {
				assert.NotEqual(t, base, tt.got)
			}
		})
	}
}

func TestRow_EmptyAccountIsZero(t *testing.T) {
	d := civil.Date{Year: 2025, Month: 1, Day: 5}
	assert.Equal(t, Row("0", d, 1, "", "x"), Row("", d, 1, "", "x"))
	assert.Len(t, Row("", d, 1, "", "x"), 64)
}

func TestContent(t *testing.T) {
	a := Content([]byte("statement bytes"))
	b := Content([]byte("statement bytes"))
	c := Content([]byte("statement bytes!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	fromReader, err := ContentReader(strings.NewReader("statement bytes"))
	require.NoError(t, err)
	assert.Equal(t, a, fromReader)
}

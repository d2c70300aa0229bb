package alias

import (
	"testing"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		narration string
		want      Candidate
	}{
		{
			name:      "upi dash form",
			narration: "UPI-JOHN DOE-DOEJOHN@BANK",
			want:      Candidate{Key: "john doe", Display: "John Doe", Type: domain.AliasTypeUPI},
		},
		{
			name:      "upi slash form skips the rrn",
			narration: "UPI/412345678901/RAVI KUMAR/ravi@okaxis/Payment",
			want:      Candidate{Key: "ravi kumar", Display: "Ravi Kumar", Type: domain.AliasTypeUPI},
		},
		{
			name:      "upi handle only",
			narration: "UPI-ravi.k@okaxis",
			want:      Candidate{Key: "ravi k", Display: "Ravi K", Type: domain.AliasTypeUPI},
		},
		{
			name:      "email",
			narration: "IMPS John.Doe@Example.com SALARY",
			want:      Candidate{Key: "john.doe@example.com", Display: "john.doe@example.com", Type: domain.AliasTypeEmail},
		},
		{
			name:      "phone",
			narration: "IMPS 9876543210 RAVI",
			want:      Candidate{Key: "9876543210", Display: "9876543210", Type: domain.AliasTypePhone},
		},
		{
			name:      "masked account",
			narration: "POS ****1234 AMAZON",
			want:      Candidate{Key: "acct_mask_1234", Display: "acct_mask_1234", Type: domain.AliasTypeAccount},
		},
		{
			name:      "x-masked card number is not an account alias",
			narration: "POS 4567XXXXXX1234 AMAZON SELLER",
			want:      Candidate{Key: "pos amazon seller", Display: "Pos Amazon Seller", Type: domain.AliasTypeWords},
		},
		{
			name:      "segment skips rail codes",
			narration: "NEFT CR-ACME CORP-SALARY",
			want:      Candidate{Key: "acme corp", Display: "Acme Corp", Type: domain.AliasTypeSegment},
		},
		{
			name:      "segment capped at four words",
			narration: "NEFT-ACME CORPORATION INDIA PRIVATE LIMITED",
			want:      Candidate{Key: "acme corporation india private", Display: "Acme Corporation India Private", Type: domain.AliasTypeSegment},
		},
		{
			name:      "leading words skip numeric tokens",
			narration: "ATM WDL S1ACME07 BRANCH 22",
			want:      Candidate{Key: "atm wdl branch", Display: "Atm Wdl Branch", Type: domain.AliasTypeWords},
		},
		{
			name:      "nothing usable",
			narration: "12345 67890",
			want:      Candidate{},
		},
		{
			name:      "empty",
			narration: "   ",
			want:      Candidate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.narration))
		})
	}
}

func TestExtract_StableAcrossWhitespaceAndCase(t *testing.T) {
	a := Extract("UPI-JOHN DOE-DOEJOHN@BANK")
	b := Extract("  upi-John   Doe-doejohn@bank ")
	assert.Equal(t, a.Key, b.Key)
}

func TestBlacklist(t *testing.T) {
	b := NewBlacklist(DefaultBlacklist)

	assert.True(t, b.Blocks(""))
	assert.True(t, b.Blocks("upi"))
	assert.True(t, b.Blocks("upi transfer"))
	assert.False(t, b.Blocks("john doe"))
	assert.False(t, b.Blocks("atm wdl branch"))

	custom := NewBlacklist([]string{" Swiggy "})
	assert.True(t, custom.Blocks("swiggy"))
	assert.False(t, custom.Blocks("upi"))
}

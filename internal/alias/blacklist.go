package alias

import "strings"

// DefaultBlacklist holds keys too generic to name a counterparty.
var DefaultBlacklist = []string{
	"payment", "upi", "transfer", "neft", "imps", "rtgs", "nach", "ach",
	"atm", "pos", "cash", "charges", "interest", "salary", "refund",
	"reversal", "debit", "credit", "fee", "emi", "self", "to", "by", "from",
}

// Blacklist filters alias keys before grouping.
type Blacklist map[string]struct{}

// NewBlacklist builds a blacklist from words, case-insensitively.
func NewBlacklist(words []string) Blacklist {
	b := make(Blacklist, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			b[w] = struct{}{}
		}
	}
	return b
}

// Blocks reports whether key is empty, listed as is, or made up only of
// listed words.
func (b Blacklist) Blocks(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}
	if _, ok := b[key]; ok {
		return true
	}
	for _, w := range strings.Fields(key) {
		if _, ok := b[w]; !ok {
			return false
		}
	}
	return true
}

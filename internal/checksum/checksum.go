// Package checksum computes the content hashes used for statement- and
// row-level deduplication.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/normalize"
)

// Content returns the hex sha256 of raw uploaded bytes.
func Content(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContentReader hashes r without buffering it.
func ContentReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("ContentReader: hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Row returns the canonical row checksum:
//
//	sha256(account_id | YYYY-MM-DD | amount_minor | reference | normalized narration)
//
// An empty account id is serialized as "0".
func Row(accountID string, date civil.Date, amountMinor int64, reference, narration string) string {
	if accountID == "" {
		accountID = "0"
	}
	canon := fmt.Sprintf("%s|%s|%d|%s|%s",
		accountID,
		date.String(),
		amountMinor,
		reference,
		normalize.Narration(narration),
	)
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

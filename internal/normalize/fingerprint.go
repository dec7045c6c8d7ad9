package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// unknownDate is the canonical marker hashed in place of a missing date so
// that "no date" records still fingerprint deterministically.
const unknownDate = "unknown"

// Fingerprint derives the stable identity hash of a listing from its
// normalized source, title, company, and posting date. Two records that fold
// to the same identity fields always produce the same fingerprint.
func Fingerprint(source, title, company string, datePosted *time.Time) string {
	date := unknownDate
	if datePosted != nil {
		date = datePosted.UTC().Format(time.RFC3339)
	}

	h := sha256.New()
	for _, field := range []string{source, title, company, date} {
		h.Write([]byte(field))
		h.Write([]byte{0}) // field separator, prevents boundary collisions
	}
	return hex.EncodeToString(h.Sum(nil))
}

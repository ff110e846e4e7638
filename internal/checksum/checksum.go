package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the content fingerprint of a synced item: the digest
// of the issue title followed by each resolution line, newline-separated.
// Any change to the title or the resolution set yields a new fingerprint.
func Fingerprint(title string, resolutions []string) string {
	var b strings.Builder
	b.WriteString(title)
	for _, r := range resolutions {
		b.WriteByte('\n')
		b.WriteString(r)
	}
	return Sum([]byte(b.String()))
}

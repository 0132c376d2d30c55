package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the lowercase-hex SHA-256 digest of data, used by the
// WAL to checksum each entry's operation payload (spec.md §3, §4.3).
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

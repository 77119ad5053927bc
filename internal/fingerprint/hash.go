// Package fingerprint implements the content-hashing and id-derivation
// primitives shared by the chunkers and the vector-store reconciler.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex-encoded SHA-256 digest of text. It is
// defined for empty input and arbitrary UTF-8.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashToUUID derives a stable, UUID-shaped identifier from a content hash.
// It takes the first 32 hex characters of hex, forces the version nibble
// (13th hex digit) to 5 and the variant nibble (17th hex digit) to 8, and
// inserts the canonical dashes. The result is deterministic: the same hex
// always yields the same id.
func HashToUUID(hex64 string) string {
	return toUUID(hex64, '5')
}

// NamespaceUUID derives a UUID from an arbitrary name the same way
// HashToUUID does, except it forces the version nibble to 4. It is used
// only for metadata point identities in backends that require UUID
// primary keys (e.g. the remote vector service's side-band kv rows).
func NamespaceUUID(name string) string {
	return toUUID(Hash(name), '4')
}

// toUUID takes the first 32 hex characters of hex, overwrites the version
// nibble with version, forces the variant nibble to 8, and formats the
// canonical 8-4-4-4-12 dashed representation.
func toUUID(hex64 string, version byte) string {
	h := padHex(hex64)
	b := []byte(h)
	b[12] = version
	b[16] = '8'
	var out [36]byte
	copy(out[0:8], b[0:8])
	out[8] = '-'
	copy(out[9:13], b[8:12])
	out[13] = '-'
	copy(out[14:18], b[12:16])
	out[18] = '-'
	copy(out[19:23], b[16:20])
	out[23] = '-'
	copy(out[24:36], b[20:32])
	return string(out[:])
}

// padHex returns exactly the first 32 hex characters of s, padding with
// zeros if s is shorter, so malformed or short input never panics.
func padHex(s string) string {
	if len(s) >= 32 {
		return s[:32]
	}
	b := make([]byte, 32)
	copy(b, s)
	for i := len(s); i < 32; i++ {
		b[i] = '0'
	}
	return string(b)
}

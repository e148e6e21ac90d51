package ingest

import "crypto/sha256"

// EventID computes the SHA-256 of one BMP message's bytes (common header
// included, OpenBMP wrapper excluded). Redelivered Kafka records therefore
// hash to the same 32-byte id.
func EventID(bmpBytes []byte) []byte {
	h := sha256.Sum256(bmpBytes)
	return h[:]
}

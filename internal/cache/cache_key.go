package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeKey generates a deterministic cache key for an embedding request.
// Provider and model are part of the key so vectors from different models
// never collide for the same text.
func ComputeKey(provider, model, text string) string {
	input := fmt.Sprintf("%s\x00%s\x00%s", provider, model, text)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key prefixes.
const (
	ResponsePrefix  = "hrqa"
	EmbeddingPrefix = "emb"
)

// Fingerprint hashes data into "<prefix>:<16 hex chars>". Map keys are
// serialized in sorted order, so equal maps give equal fingerprints
// regardless of insertion order.
func Fingerprint(prefix string, data map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Maps of JSON-representable values cannot fail to encode.
	_ = enc.Encode(data)

	sum := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return prefix + ":" + hex.EncodeToString(sum[:])[:16]
}

// ResponseKey addresses a cached answer.
func ResponseKey(query string, topK int, model string) string {
	return Fingerprint(ResponsePrefix, map[string]any{
		"query": query,
		"top_k": topK,
		"model": model,
	})
}

// EmbeddingKey addresses a cached query embedding.
func EmbeddingKey(text string) string {
	return Fingerprint(EmbeddingPrefix, map[string]any{"text": text})
}

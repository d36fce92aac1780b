// Package chunk splits documents into overlapping character windows.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Defaults used when a caller has no configuration.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// ContentType tags where a chunk came from.
type ContentType string

const (
	ContentTypePolicy  ContentType = ""
	ContentTypeMeeting ContentType = "meeting"
)

// Chunk is a retrievable unit of text with its position in the source.
type Chunk struct {
	ID      string      // SHA256(source + ":" + index)[:16]
	Source  string      // File name or meeting title
	Index   int         // 0-based position within the source
	Content string      // Window text
	Type    ContentType // Empty for policy documents
}

// chunkID derives a stable identifier for a chunk position.
func chunkID(source string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", source, index)))
	return hex.EncodeToString(sum[:])[:16]
}

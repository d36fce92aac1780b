package chunk

import (
	"strings"
	"unicode"
)

// Split cuts text into windows of size characters, each starting
// max(1, size-overlap) characters after the previous one. The last window
// is the first that reaches the end of text.
//
// size <= 0 returns text unchanged as a single chunk. Empty text yields a
// single empty chunk. Negative overlap is treated as zero. Positions are
// counted in runes, so multi-byte characters are never split.
func Split(text string, size, overlap int) []string {
	if size <= 0 || text == "" {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}
	step := max(1, size-overlap)

	runes := []rune(text)
	n := len(runes)
	var chunks []string
	for i := 0; i < n; i += step {
		end := min(i+size, n)
		chunks = append(chunks, string(runes[i:end]))
		if i+size >= n {
			break
		}
	}
	return chunks
}

// Build splits a document and attaches source metadata. Windows without a
// letter or digit are dropped but indices stay dense. maxChunks > 0 caps the
// result.
func Build(source, text string, size, overlap, maxChunks int, typ ContentType) []Chunk {
	var out []Chunk
	for _, piece := range Split(text, size, overlap) {
		if !HasWordChars(piece) {
			continue
		}
		if maxChunks > 0 && len(out) >= maxChunks {
			break
		}
		idx := len(out)
		out = append(out, Chunk{
			ID:      chunkID(source, idx),
			Source:  source,
			Index:   idx,
			Content: piece,
			Type:    typ,
		})
	}
	return out
}

// HasWordChars reports whether s contains at least one letter or digit.
func HasWordChars(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// Texts returns the content of each chunk, in order.
func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}

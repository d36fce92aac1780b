package extract

import (
	"strconv"
	"strings"
)

// kerningGap is the TJ adjustment (thousandths of text space) treated as a
// word break.
const kerningGap = -200

// streamText collects the literal strings shown between BT and ET in a page
// content stream. Line-advancing operators start a new line; positioning
// operators and wide TJ gaps insert a space. Hex strings are skipped since
// they need the font's encoding to decode.
func streamText(content string) string {
	var out, line strings.Builder
	inText := false

	space := func() {
		if s := line.String(); s != "" && !strings.HasSuffix(s, " ") {
			line.WriteByte(' ')
		}
	}
	newline := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(content[i:])
			if inText {
				line.WriteString(s)
			}
			i += n
		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			for i < len(content) && content[i] != '>' {
				i++
			}
			i++
		case c == '-' || c == '+' || c == '.' || isDigit(c):
			j := i + 1
			for j < len(content) && (isDigit(content[j]) || content[j] == '.') {
				j++
			}
			if inText {
				if v, err := strconv.ParseFloat(content[i:j], 64); err == nil && v <= kerningGap {
					space()
				}
			}
			i = j
		case isOperatorByte(c):
			j := i + 1
			for j < len(content) && isOperatorByte(content[j]) {
				j++
			}
			switch content[i:j] {
			case "BT":
				inText = true
			case "ET":
				inText = false
				newline()
			case "T*", "'", "\"":
				newline()
			case "Td", "TD", "Tm":
				space()
			}
			i = j
		default:
			i++
		}
	}
	newline()
	return strings.TrimRight(out.String(), "\n")
}

// readLiteral decodes a parenthesised PDF string starting at s[0] == '('.
// It returns the decoded text and the number of bytes consumed.
func readLiteral(s string) (string, int) {
	var b strings.Builder
	depth := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return b.String(), i
			}
			b.WriteByte(c)
		case '\\':
			i++
			if i >= len(s) {
				return b.String(), i
			}
			e := s[i]
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r':
				if i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					j := i
					for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
						j++
					}
					v, _ := strconv.ParseUint(s[i:j], 8, 16)
					writeByte(&b, byte(v))
					i = j
					continue
				}
				b.WriteByte(e)
			}
			i++
		default:
			writeByte(&b, c)
			i++
		}
	}
	return b.String(), i
}

// writeByte maps bytes above ASCII as Latin-1 so the result is valid UTF-8.
func writeByte(b *strings.Builder, c byte) {
	if c < 0x80 {
		b.WriteByte(c)
		return
	}
	b.WriteRune(rune(c))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isOperatorByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '*' || c == '\'' || c == '"'
}

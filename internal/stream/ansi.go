package stream

import "strings"

// StripANSI removes ANSI escape sequences from terminal output in a single
// O(n) pass. Handles CSI (ESC[ and 8-bit 0x9B), OSC (ESC] terminated by BEL
// or ST), and bare two-byte escapes.
//
// Intentionally not regex-based: complex ANSI regexes can backtrack
// catastrophically on malformed sequences, and this runs on every chunk.
func StripANSI(content string) string {
	// Fast path for chunks without escape bytes.
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		if content[i] == '\x1b' {
			// CSI: ESC [ params... letter
			if i+1 < len(content) && content[i+1] == '[' {
				j := i + 2
				for j < len(content) {
					c := content[j]
					if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
						j++
						break
					}
					j++
				}
				i = j
				continue
			}
			// OSC: ESC ] ... BEL, or ESC ] ... ESC \
			if i+1 < len(content) && content[i+1] == ']' {
				if bell := strings.Index(content[i:], "\x07"); bell != -1 {
					i += bell + 1
					continue
				}
				if st := strings.Index(content[i:], "\x1b\\"); st != -1 {
					i += st + 2
					continue
				}
			}
			// Any other escape: ESC plus one byte.
			if i+1 < len(content) {
				i += 2
				continue
			}
		}
		// 8-bit CSI without a leading ESC.
		if content[i] == '\x9b' {
			j := i + 1
			for j < len(content) {
				c := content[j]
				if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
					j++
					break
				}
				j++
			}
			i = j
			continue
		}
		b.WriteByte(content[i])
		i++
	}

	return b.String()
}

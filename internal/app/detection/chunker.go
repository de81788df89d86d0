package detection

import (
	"strings"
	"unicode/utf8"

	"github.com/ahrav/piiguard/internal/domain/detection"
)

// Split breaks content into chunks no larger than maxBytes (UTF-8 encoded).
// Content that already fits is returned as a single chunk. Larger content is
// split on line boundaries, packing whole lines into each chunk; a line that
// alone exceeds maxBytes is cut into byte-bounded pieces. Each chunk records the
// byte offset of its first byte so classifier offsets can be mapped back onto
// the original content.
//
// For valid UTF-8 input and maxBytes >= utf8.UTFMax the chunk texts concatenate
// back to content exactly. Below that, a rune that cannot fit in any chunk is
// replaced with U+FFFD when the replacement fits, and dropped otherwise.
func Split(content string, maxBytes int) []detection.Chunk {
	if content == "" {
		return nil
	}
	if maxBytes <= 0 || len(content) <= maxBytes {
		return []detection.Chunk{{Text: content, ByteOffset: 0}}
	}

	var (
		chunks []detection.Chunk
		buf    strings.Builder
		start  int
		offset int
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, detection.Chunk{Text: buf.String(), ByteOffset: start})
		buf.Reset()
	}

	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}

		if len(line) > maxBytes {
			flush()
			for _, piece := range splitLine(line, maxBytes) {
				if piece.Text != "" {
					piece.ByteOffset += offset
					chunks = append(chunks, piece)
				}
			}
			offset += len(line)
			continue
		}

		if buf.Len()+len(line) > maxBytes {
			flush()
		}
		if buf.Len() == 0 {
			start = offset
		}
		buf.WriteString(line)
		offset += len(line)
	}
	flush()

	return chunks
}

// splitLine cuts one oversized line into pieces of at most maxBytes. Cuts are
// moved back to the nearest rune start so multi-byte characters stay whole.
// Offsets in the returned chunks are relative to the line.
func splitLine(line string, maxBytes int) []detection.Chunk {
	pieces := make([]detection.Chunk, 0, len(line)/maxBytes+1)
	for i := 0; i < len(line); {
		end := min(i+maxBytes, len(line))
		if end < len(line) {
			cut := end
			for cut > i && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut > i {
				end = cut
			}
		}

		text := line[i:end]
		if !utf8.ValidString(text) {
			text = lenient(text, maxBytes)
		}
		pieces = append(pieces, detection.Chunk{Text: text, ByteOffset: i})
		i = end
	}
	return pieces
}

// lenient repairs a piece that was cut mid-rune.
func lenient(text string, maxBytes int) string {
	repaired := strings.ToValidUTF8(text, string(utf8.RuneError))
	if len(repaired) <= maxBytes {
		return repaired
	}
	return strings.ToValidUTF8(text, "")
}

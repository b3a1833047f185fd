package utils

// SplitText splits text into chunks of at most chunkSize runes, repeating the
// last overlap runes of each chunk at the start of the next so context
// survives the boundary. Cuts that would land inside a word back off to the
// nearest whitespace within the final tenth of the chunk; a chunk with no
// whitespace there (one long token) is cut hard rather than losing data.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	total := len(runes)
	if total <= chunkSize {
		return []string{text}
	}
	if overlap >= chunkSize {
		overlap = 0 // degenerate config, step whole chunks
	}

	var chunks []string
	start := 0
	for start < total {
		end := start + chunkSize
		if end >= total {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		end = snapToWhitespace(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// snapToWhitespace moves the cut back to just after the last space or newline
// in the final tenth of the chunk, so the chunk ends on a whole word.
func snapToWhitespace(runes []rune, start, end int) int {
	window := (end - start) / 10
	for i := end; i > end-window && i > start; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\n' {
			return i
		}
	}
	return end
}

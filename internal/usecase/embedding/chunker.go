package embedding

// Chunking constants. Token counts are estimated at four bytes per token,
// which is close enough for sizing requests against provider limits.
const (
	bytesPerToken = 4

	// DefaultOverlapChars is the overlap carried between adjacent chunks so
	// no sentence is split across a hard boundary without context.
	DefaultOverlapChars = 200
)

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return len(text) / bytesPerToken
}

// ChunkText splits text into overlapping chunks of at most chunkChars
// bytes. Each cut prefers the last sentence or line boundary in the second
// half of the chunk; when no boundary lands there, the cut falls on the
// hard size limit. Text at or under the limit comes back as one chunk.
func ChunkText(text string, chunkChars, overlapChars int) []string {
	if chunkChars <= 0 || len(text) <= chunkChars {
		return []string{text}
	}
	if overlapChars >= chunkChars {
		overlapChars = chunkChars / 2
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + chunkChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		end = cutPoint(text, start, end, chunkChars)
		chunks = append(chunks, text[start:end])

		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// cutPoint finds the chunk end: the byte after the last sentence or line
// boundary at or beyond half the chunk size, or hardEnd when none exists.
func cutPoint(text string, start, hardEnd, chunkChars int) int {
	minCut := start + chunkChars/2
	for i := hardEnd - 1; i >= minCut; i-- {
		switch text[i] {
		case '\n', '.', '!', '?':
			return i + 1
		}
	}
	return hardEnd
}

package core

import (
	"fmt"
	"strings"
)

// ChunkText splits text into overlapping windows of chunkSize words, each
// window advancing by chunkSize - overlap words. Window words are re-joined
// with single spaces, so the result is whitespace-normalized. Input that
// normalizes to nothing yields no chunks.
//
// An overlap equal to or larger than the chunk size would make the stride
// zero or negative; that is a configuration error, not a degenerate input.
func ChunkText(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	step := chunkSize - overlap
	if step <= 0 {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(words) {
			break
		}
	}
	return chunks, nil
}

package ai

import (
	"strings"
)

const (
	// DefaultChunkSize is the default maximum number of characters per chunk.
	DefaultChunkSize = 60000
	// DefaultChunkOverlap is the number of characters repeated between chunks.
	DefaultChunkOverlap = 200
)

// ChunkOptions configures how source is split into chunks.
type ChunkOptions struct {
	MaxChunkSize int
	Overlap      int
}

// chunkBreaks are tried in order when looking for a place to cut. Macro
// source has its whitespace collapsed, so the end of a subroutine is the
// best boundary available.
var chunkBreaks = []string{"End Sub ", "End Function ", "\n\n", ". "}

// ChunkText splits text into overlapping chunks no longer than
// MaxChunkSize. Text that fits is returned as a single chunk.
func ChunkText(text string, opts ChunkOptions) []string {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxChunkSize/2 {
		opts.Overlap = 0
	} else if opts.Overlap == 0 {
		opts.Overlap = min(DefaultChunkOverlap, opts.MaxChunkSize/4)
	}

	if len(text) <= opts.MaxChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + opts.MaxChunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		window := text[start:end]
		for _, sep := range chunkBreaks {
			if i := strings.LastIndex(window, sep); i > opts.MaxChunkSize/2 {
				end = start + i + len(sep)
				break
			}
		}
		chunks = append(chunks, text[start:end])
		start = end - opts.Overlap
	}
	return chunks
}

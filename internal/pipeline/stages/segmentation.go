package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// Segmentation splits extracted text into overlapping chunks sized for the
// downstream entity model's context window.
type Segmentation struct {
	chunkSize int
	overlap   int
}

// NewSegmentation creates the segmentation stage. chunkSize and overlap are
// measured in runes.
func NewSegmentation(chunkSize, overlap int) *Segmentation {
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Segmentation{chunkSize: chunkSize, overlap: overlap}
}

func (s *Segmentation) Stage() domain.Stage {
	return domain.StageSegmentation
}

func (s *Segmentation) Run(ctx context.Context, doc *domain.Document, prior ArtifactLoader) (domain.StagePayload, error) {
	payload, err := prior(ctx, domain.StageExtraction)
	if err != nil {
		return nil, err
	}
	extraction, ok := payload.(*domain.ExtractionResult)
	if !ok {
		return nil, domain.NewValidationError(domain.StageSegmentation,
			fmt.Errorf("expected extraction result, got %T", payload))
	}

	return &domain.SegmentationResult{Chunks: s.split(extraction.Text)}, nil
}

// split walks the text in chunkSize windows, preferring to break on
// whitespace near the window edge. The next window always starts overlap
// runes before the previous chunk's actual end, so every rune lands in at
// least one chunk even when a whitespace break shrinks the window.
func (s *Segmentation) split(text string) []domain.Chunk {
	runes := []rune(text)
	var chunks []domain.Chunk

	for start := 0; start < len(runes); {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		} else {
			// Back up to the nearest whitespace so entities aren't cut
			// mid-word, but never shrink the chunk below half size.
			for i := end; i > start+s.chunkSize/2; i-- {
				if isSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}

		body := strings.TrimSpace(string(runes[start:end]))
		if body != "" {
			chunks = append(chunks, domain.Chunk{
				Index: len(chunks),
				Text:  body,
				Start: start,
				End:   end,
			})
		}
		if end == len(runes) {
			break
		}

		next := end - s.overlap
		if next <= start {
			// Overlap would not advance past this window; give it up
			// rather than loop.
			next = end
		}
		start = next
	}
	return chunks
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

package stages

import (
	"context"
	"errors"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/services"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/poller"
)

// Extraction is the one job-backed stage: OCR runs remotely and is tracked
// through submit/poll instead of a synchronous work unit.
type Extraction struct {
	ocr services.OCRClient
}

// NewExtraction creates the extraction stage over an OCR collaborator.
func NewExtraction(ocr services.OCRClient) *Extraction {
	return &Extraction{ocr: ocr}
}

func (e *Extraction) Stage() domain.Stage {
	return domain.StageExtraction
}

// SubmitFunc returns the poller submit closure for a document.
func (e *Extraction) SubmitFunc(doc *domain.Document) poller.SubmitFunc {
	return func(ctx context.Context) (string, error) {
		return e.ocr.Submit(ctx, doc.Source, doc.ContentType)
	}
}

// PollFunc returns the poller poll closure. A succeeded OCR job yields the
// extraction payload; a failed one surfaces the service's error message.
func (e *Extraction) PollFunc() poller.PollFunc {
	return func(ctx context.Context, jobID string) (*poller.PollStatus, error) {
		st, err := e.ocr.Poll(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch st.State {
		case services.OCRJobSucceeded:
			return &poller.PollStatus{
				Done:        true,
				StatusLabel: string(st.State),
				Payload: &domain.ExtractionResult{
					Text:       st.Text,
					Confidence: st.Confidence,
					PageCount:  st.Pages,
				},
			}, nil
		case services.OCRJobFailed:
			return &poller.PollStatus{
				Done:        true,
				StatusLabel: string(st.State),
				Err:         errors.New(st.Error),
			}, nil
		default:
			return &poller.PollStatus{StatusLabel: string(st.State)}, nil
		}
	}
}

package processor

import (
	"context"

	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/pkg/publishers"
)

// Platform is the subset of the threat-intel platform client used to
// write results back onto a report.
type Platform interface {
	UpdateDescription(ctx context.Context, id, text string) error
	EnsureLabel(ctx context.Context, value, color string) (string, error)
	AddLabel(ctx context.Context, entityID, labelID string) error
	UploadFile(ctx context.Context, entityID, name, mime string, data []byte) error
}

// ArticleExtractor fetches and parses the article behind a report URL.
type ArticleExtractor interface {
	Extract(ctx context.Context, url string) (*domain.ArticleResult, bool)
}

// PDFRenderer turns page HTML into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, req domain.RenderRequest) ([]byte, bool)
}

// Ledger remembers which reports were already handled.
type Ledger interface {
	SeenReport(id string) (bool, error)
	MarkReport(id string) error
}

// EventPublisher publishes report.enhanced events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

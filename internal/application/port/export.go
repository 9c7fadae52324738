package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// PayoutExporter renders approved submissions into a payout document
type PayoutExporter interface {
	// Export returns the document bytes and its content type
	Export(ctx context.Context, subs []*entity.Submission) ([]byte, error)
	ContentType() string
	FileExtension() string
}

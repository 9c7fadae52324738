// Package export renders payout documents.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const defaultSheetName = "Payouts"

// firstDataRow is the first row below the title block and header
const firstDataRow = 4

var payoutHeaders = []string{
	"Submission ID", "Kind", "Owner", "Reference Date", "Reviewer", "Approved At", "Amount",
}

// PayoutSheet writes approved submissions to an xlsx workbook
type PayoutSheet struct {
	companyName string
	sheetName   string
	logger      *zap.Logger
	now         func() time.Time
}

// NewPayoutSheet creates a payout sheet exporter
func NewPayoutSheet(companyName, sheetName string, logger *zap.Logger) *PayoutSheet {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &PayoutSheet{
		companyName: companyName,
		sheetName:   sheetName,
		logger:      logger,
		now:         time.Now,
	}
}

// ContentType implements port.PayoutExporter
func (p *PayoutSheet) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension implements port.PayoutExporter
func (p *PayoutSheet) FileExtension() string {
	return ".xlsx"
}

// Export renders one row per submission followed by a total row
func (p *PayoutSheet) Export(ctx context.Context, subs []*entity.Submission) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), p.sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	sheet := p.sheetName

	p.setCell(f, sheet, "A1", p.companyName)
	p.setCell(f, sheet, "A2", "Generated "+p.now().UTC().Format(time.RFC3339))

	for i, h := range payoutHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, firstDataRow-1)
		if err != nil {
			return nil, err
		}
		p.setCell(f, sheet, cell, h)
	}

	total := decimal.Zero
	row := firstDataRow
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		amount := decimal.Zero
		if sub.Total != nil {
			amount = *sub.Total
		}
		total = total.Add(amount)

		approvedAt := ""
		if sub.ReviewedAt != nil {
			approvedAt = sub.ReviewedAt.UTC().Format("2006-01-02 15:04")
		}

		values := []interface{}{
			sub.ID,
			string(sub.Kind),
			sub.OwnerID,
			sub.ReferenceDate().Format("2006-01-02"),
			sub.ReviewerID,
			approvedAt,
			amount.StringFixed(2),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	p.setCell(f, sheet, fmt.Sprintf("F%d", row), "Total")
	p.setCell(f, sheet, fmt.Sprintf("G%d", row), total.StringFixed(2))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	p.logger.Info("Payout sheet rendered",
		zap.Int("rows", len(subs)),
		zap.String("total", total.StringFixed(2)))

	return buf.Bytes(), nil
}

// setCell sets a cell value, logging instead of failing
func (p *PayoutSheet) setCell(f *excelize.File, sheet, cell, value string) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		p.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

var _ port.PayoutExporter = (*PayoutSheet)(nil)

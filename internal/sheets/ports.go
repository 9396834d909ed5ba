// Package sheets defines the outbound port for the dashboard export.
package sheets

import (
	"context"

	"bilancio/internal/core"
)

// SummaryWriter receives resolved month summaries. The Google Sheets
// adapter writes them to a spreadsheet dashboard; the memory adapter
// records them for tests.
type SummaryWriter interface {
	WriteMonthSummary(ctx context.Context, summary core.MonthSummary) error
}

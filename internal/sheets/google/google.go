// Package google writes month summaries to a Google Sheets dashboard.
// Each year gets its own sheet named "<year> <base>"; each month is
// one row keyed by the month string in column A, updated in place.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/config"
	"bilancio/internal/core"
	ports "bilancio/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

var _ ports.SummaryWriter = (*Client)(nil)

// NewClient builds a Sheets client from the OAuth client and token in
// the configuration. Credentials may be inline JSON or file paths.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.GoogleSpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	clientJSON, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("load OAuth client: %w", err)
	}
	tokenJSON, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("load OAuth token: %w", err)
	}

	oauthCfg, err := googleauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse OAuth token: %w", err)
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithTokenSource(oauthCfg.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	base := strings.TrimSpace(cfg.GoogleSheetName)
	if base == "" {
		base = "Dashboard"
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.GoogleSpreadsheetID,
		sheetBase:     base,
	}, nil
}

func readCredential(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read credential file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("no credential configured")
}

// WriteMonthSummary upserts one dashboard row for the summary's month.
// Columns: month, income, expense, balance, cash, per-card breakdown.
func (c *Client) WriteMonthSummary(ctx context.Context, summary core.MonthSummary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if !summary.Month.Valid() {
		return core.ErrInvalidMonth
	}

	sheetName := c.dashboardSheetName(summary.Month.Year())
	row, err := c.findMonthRow(ctx, sheetName, summary.Month)
	if err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!A%d:F%d", sheetName, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{{
		string(summary.Month),
		summary.TotalIncome.Euros(),
		summary.TotalExpense.Euros(),
		summary.Balance.Euros(),
		summary.CashTotal.Euros(),
		cardBreakdown(summary.PerCard),
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// findMonthRow locates the row whose first column holds the month, or
// the first empty row after the existing data.
func (c *Client) findMonthRow(ctx context.Context, sheetName string, month core.Month) (int, error) {
	rng := fmt.Sprintf("%s!A:A", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == string(month) {
			return i + 1, nil
		}
	}
	return len(resp.Values) + 1, nil
}

func (c *Client) dashboardSheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts
// with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func cardBreakdown(cards []core.CardAmount) string {
	var parts []string
	for _, card := range cards {
		if card.Amount.IsZero() {
			continue
		}
		status := "unpaid"
		if card.IsPaid {
			status = "paid"
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", card.Name, core.FormatEuros(card.Amount.Cents), status))
	}
	return strings.Join(parts, ", ")
}

package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cashmon/internal/config"
	"cashmon/internal/core"
	"cashmon/internal/ingest"
	ports "cashmon/internal/sheets"
)

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	alertsSheet       string

	// The alerts header is written once per sheet lifetime.
	mu            sync.Mutex
	headerWritten bool
}

// Ensure interface conformance
var (
	_ ports.TransactionReader = (*Client)(nil)
	_ ports.AlertWriter       = (*Client)(nil)
)

// NewFromConfig creates a Sheets client authenticated with the configured
// service account.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.GoogleSpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.GoogleSpreadsheetID, cfg.GoogleTransactionsSheet, cfg.GoogleAlertsSheet), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, transactionsSheet, alertsSheet string) *Client {
	return &Client{
		svc:               svc,
		spreadsheetID:     spreadsheetID,
		transactionsSheet: transactionsSheet,
		alertsSheet:       alertsSheet,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Inline JSON takes precedence over the file path.
func newSheetsService(ctx context.Context, inlineJSON, file string) (*gsheet.Service, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)

	var (
		credentialsJSON []byte
		err             error
	)
	switch {
	case inlineJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(inlineJSON)
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// ReadTransactions reads the transactions tab. The first row is the header;
// dates stored as spreadsheet dates arrive as serial day numbers.
func (c *Client) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", c.transactionsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	records := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		records[i] = toStrings(row)
	}
	txns, err := ingest.ParseRecords(records)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.transactionsSheet, err)
	}
	return txns, nil
}

// AppendAlerts appends one row per alert below the existing data of the
// alerts tab, writing the header first when the tab is empty.
func (c *Client) AppendAlerts(ctx context.Context, alerts []ports.Alert) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	values := make([][]any, 0, len(alerts)+1)
	if !c.headerWritten {
		empty, err := c.alertsSheetEmpty(ctx)
		if err != nil {
			return 0, err
		}
		if empty {
			values = append(values, ports.AlertHeader)
		}
	}
	for _, a := range alerts {
		values = append(values, a.Row())
	}

	rng := fmt.Sprintf("%s!A1", c.alertsSheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", c.alertsSheet, err)
	}
	c.headerWritten = true

	written := len(alerts)
	if resp.Updates != nil && resp.Updates.UpdatedRows > 0 {
		written = int(resp.Updates.UpdatedRows) - (len(values) - len(alerts))
	}
	slog.DebugContext(ctx, "Appended alerts", "sheet", c.alertsSheet, "rows", written)
	return written, nil
}

func (c *Client) alertsSheetEmpty(ctx context.Context) (bool, error) {
	rng := fmt.Sprintf("%s!A1:A1", c.alertsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	return len(resp.Values) == 0, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

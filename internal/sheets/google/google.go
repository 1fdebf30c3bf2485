package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "ledgerdash/internal/sheets"
	"ledgerdash/internal/table"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var _ ports.SheetWriter = (*Client)(nil)

// Credentials selects the service account used to reach the spreadsheet.
// JSON wins over File when both are set.
type Credentials struct {
	JSON string
	File string
}

// New creates a Sheets export client for one spreadsheet using service
// account credentials.
func New(ctx context.Context, spreadsheetID string, creds Credentials, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, creds, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test
// endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Extra options bypass the credentials entirely when they carry their own
// authentication (tests use option.WithoutAuthentication).
func newSheetsService(ctx context.Context, creds Credentials, extra ...goption.ClientOption) (*gsheet.Service, error) {
	if len(extra) > 0 {
		return gsheet.NewService(ctx, extra...)
	}

	serviceAccountJSON := strings.TrimSpace(creds.JSON)
	serviceAccountFile := strings.TrimSpace(creds.File)

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Google Sheets API
// with connection pooling, timeouts and keep-alive.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// WriteSheet replaces the contents of the tab named after the sheet: the tab
// is created when missing, cleared, then rewritten from A1. The returned
// reference is the updated range.
func (c *Client) WriteSheet(ctx context.Context, s table.Sheet) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tab := ports.SheetName(s.Name)

	if err := c.ensureTab(ctx, tab); err != nil {
		return "", err
	}

	all := quoteRange(tab, "")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, all, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: ports.Values(s.Grid)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteRange(tab, "A1"), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", tab, err)
	}
	if resp != nil && resp.UpdatedRange != "" {
		return resp.UpdatedRange, nil
	}
	return quoteRange(tab, fmt.Sprintf("A1:%s%d", columnName(len(s.Grid.Headers)), len(vr.Values))), nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	return nil
}

func quoteRange(tab, cells string) string {
	q := "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	if cells == "" {
		return q
	}
	return q + "!" + cells
}

// columnName converts a 1-based column index to letters (1 -> A, 27 -> AA).
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

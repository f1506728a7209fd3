package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cashmon/internal/config"
	ports "cashmon/internal/sheets"
)

// fakeSheets serves the subset of the Sheets v4 values API the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	tabs     map[string][][]any
	appended [][]any
	gets     int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodPost && strings.HasSuffix(rng, ":append") {
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.Unmarshal(body, &vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.appended = append(f.appended, vr.Values...)
		tab, _, _ := strings.Cut(rng, "!")
		f.tabs[tab] = append(f.tabs[tab], vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRows": len(vr.Values)},
		})
		return
	}

	f.gets++
	tab, _, _ := strings.Cut(rng, "!")
	values := f.tabs[tab]
	if strings.HasSuffix(rng, "A1:A1") && len(values) > 0 {
		values = values[:1]
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "Transactions", "Alerts")
}

func TestNewFromConfig_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromConfig(context.Background(), &config.Config{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromConfig_MissingCredentials(t *testing.T) {
	_, err := NewFromConfig(context.Background(), &config.Config{GoogleSpreadsheetID: "id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got: %v", err)
	}
}

func TestNewFromConfig_UnreadableFile(t *testing.T) {
	_, err := NewFromConfig(context.Background(), &config.Config{
		GoogleSpreadsheetID:      "id",
		GoogleServiceAccountFile: t.TempDir() + "/missing.json",
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got: %v", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.ReadTransactions(context.Background()); err == nil {
		t.Error("expected error from ReadTransactions without service")
	}
	if _, err := c.AppendAlerts(context.Background(), []ports.Alert{{}}); err == nil {
		t.Error("expected error from AppendAlerts without service")
	}
}

func TestReadTransactions(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{
		"Transactions": {
			{"Booking Date", "Value Date", "Description", "Net Amount", "Market Value", "Client"},
			{45292, "2024-01-10", "Transfer of EUR 676.90", 300000, 10000000, "A"},
			{},
			{"2024-01-02", 45293, "Coupon", -12.5, 1e7, "B"},
		},
	}}
	c := newTestClient(t, fake)

	txns, err := c.ReadTransactions(context.Background())
	if err != nil {
		t.Fatalf("ReadTransactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	if got := txns[0].BookingDate; got != (civil.Date{Year: 2024, Month: time.January, Day: 1}) {
		t.Errorf("booking date = %v", got)
	}
	if txns[0].NetAmount != 300000 || txns[0].MarketValue != 10000000 {
		t.Errorf("unexpected amounts: %+v", txns[0])
	}
	if txns[1].MarketValue != 10000000 {
		t.Errorf("market value = %v, want 1e7", txns[1].MarketValue)
	}
	if txns[1].ValueDate.String() != "2024-01-02" {
		t.Errorf("value date = %v", txns[1].ValueDate)
	}
}

func TestReadTransactions_MissingColumn(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{
		"Transactions": {{"Description", "Amount"}},
	}}
	c := newTestClient(t, fake)
	if _, err := c.ReadTransactions(context.Background()); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestAppendAlerts_WritesHeaderOnce(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{}}
	c := newTestClient(t, fake)

	alert := ports.Alert{
		DecisionID:    1,
		TransactionID: "t1",
		ClientID:      "A",
		BookingDate:   civil.Date{Year: 2024, Month: time.January, Day: 1},
		NetAmount:     300000,
		Label:         "transfer [CCY]",
		DealType:      5,
		DecisionScore: -2.5,
		ScoredAt:      time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
	}

	n, err := c.AppendAlerts(context.Background(), []ports.Alert{alert})
	if err != nil || n != 1 {
		t.Fatalf("first append: n=%d err=%v", n, err)
	}
	n, err = c.AppendAlerts(context.Background(), []ports.Alert{alert, alert})
	if err != nil || n != 2 {
		t.Fatalf("second append: n=%d err=%v", n, err)
	}

	if len(fake.appended) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d rows", len(fake.appended))
	}
	if fake.appended[0][0] != "scored_at" {
		t.Errorf("first row should be the header, got %v", fake.appended[0])
	}
	if fake.appended[1][1] != "t1" || fake.appended[1][0] != "2024-01-02T08:00:00Z" {
		t.Errorf("unexpected alert row: %v", fake.appended[1])
	}
	if fake.gets != 1 {
		t.Errorf("header check should run once, ran %d times", fake.gets)
	}
}

func TestAppendAlerts_ExistingSheetSkipsHeader(t *testing.T) {
	fake := &fakeSheets{tabs: map[string][][]any{
		"Alerts": {ports.AlertHeader},
	}}
	c := newTestClient(t, fake)

	if _, err := c.AppendAlerts(context.Background(), []ports.Alert{{TransactionID: "t9"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fake.appended) != 1 || fake.appended[0][1] != "t9" {
		t.Fatalf("unexpected appended rows: %v", fake.appended)
	}
}

func TestAppendAlerts_Empty(t *testing.T) {
	c := newTestClient(t, &fakeSheets{tabs: map[string][][]any{}})
	n, err := c.AppendAlerts(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("empty append: n=%d err=%v", n, err)
	}
}

func TestToStrings(t *testing.T) {
	got := toStrings([]interface{}{1e7, -12.5, " x ", true})
	want := []string{"10000000", "-12.5", "x", "true"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("toStrings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sugarscan/sugartrack/internal/auth"
	"github.com/sugarscan/sugartrack/internal/catalog"
	catalogsqlite "github.com/sugarscan/sugartrack/internal/catalog/sqlite"
	"github.com/sugarscan/sugartrack/internal/httpserver"
	"github.com/sugarscan/sugartrack/internal/ledger"
	ledgersqlite "github.com/sugarscan/sugartrack/internal/ledger/sqlite"
	"github.com/sugarscan/sugartrack/internal/testutil"
	userstoresqlite "github.com/sugarscan/sugartrack/internal/userstore/sqlite"
)

type stubHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return s.handler(req)
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New("localhost", nil); err == nil {
		t.Fatalf("expected error for URL without scheme")
	}
}

func TestLoginStoresToken(t *testing.T) {
	calls := 0
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		calls++
		switch calls {
		case 1:
			if req.Method != http.MethodPost || req.URL.Path != "/api/login" {
				t.Fatalf("unexpected request: %s %s", req.Method, req.URL.Path)
			}
			return jsonResponse(http.StatusOK, `{"status":"success","message":"login successful","data":{"token":"tok","userData":{"user_id":7,"user_email":"a@b.c"}}}`), nil
		case 2:
			if got := req.Header.Get("Authorization"); got != "Bearer tok" {
				t.Fatalf("expected bearer token, got %q", got)
			}
			return jsonResponse(http.StatusOK, `{"status":"success","message":"read successful","data":{"user_id":7,"sugar_limit":50}}`), nil
		default:
			t.Fatalf("unexpected call %d", calls)
			return nil, nil
		}
	}}

	c, err := New("http://example.com/api/", stub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session, err := c.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.User.ID != 7 || c.Token() != "tok" {
		t.Fatalf("unexpected session %+v", session)
	}
	user, err := c.Profile(context.Background())
	if err != nil || user.SugarLimit != 50 {
		t.Fatalf("Profile: %+v %v", user, err)
	}
}

func TestEnvelopeErrors(t *testing.T) {
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/consume" {
			return jsonResponse(http.StatusBadRequest, `{"status":"fail","message":"Data not found!"}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"status":"missed","message":"User is not authorized!"}`), nil
	}}
	c, _ := New("http://example.com", stub)

	_, err := c.DailyStatus(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Data not found!" || !IsNotFound(err) {
		t.Fatalf("expected not found APIError, got %v", err)
	}
	if _, err := c.Profile(context.Background()); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestClientAgainstServer(t *testing.T) {
	dir := t.TempDir()
	users, err := userstoresqlite.New(filepath.Join(dir, "identity.db"))
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	ledgerStore, err := ledgersqlite.New(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	products, err := catalogsqlite.New(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	t.Cleanup(func() {
		_ = users.Close()
		_ = ledgerStore.Close()
		_ = products.Close()
	})
	ctx := context.Background()
	seed := catalog.Seed{
		Grades:   []catalog.Grade{{ID: "C", Label: "High sugar", MaxSugarGrams: 20}},
		Products: []catalog.Product{{Barcode: "111", Name: "Cola", SugarGrams: 35, GradeID: "C", Recommendations: []string{"Sparkling water"}}},
	}
	if err := seed.Apply(ctx, products); err != nil {
		t.Fatalf("seed: %v", err)
	}

	srv := httpserver.New(auth.NewGate("client-test", time.Hour), users, ledger.New(ledgerStore, users), products)
	ts := testutil.NewIPv4Server(t, srv.Router())

	c, err := New(ts.URL, ts.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Register(ctx, "Budi", "budi@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := c.Login(ctx, "budi@example.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	limit := 40.0
	if user, err := c.UpdateProfile(ctx, ProfileUpdate{Limit: &limit}); err != nil || user.SugarLimit != 40 {
		t.Fatalf("UpdateProfile: %+v %v", user, err)
	}

	rec, err := c.Consume(ctx, 12, "")
	if err != nil || !rec.Created {
		t.Fatalf("Consume: %+v %v", rec, err)
	}
	rec, err = c.Consume(ctx, 8, "")
	if err != nil || rec.Created || rec.ConsumedSugar != 20 {
		t.Fatalf("Consume again: %+v %v", rec, err)
	}
	status, err := c.DailyStatus(ctx)
	if err != nil || status.Remaining != 20 || status.UserName != "Budi" {
		t.Fatalf("DailyStatus: %+v %v", status, err)
	}

	history, err := c.History(ctx)
	if err != nil || len(history) != 0 {
		t.Fatalf("empty History: %+v %v", history, err)
	}
	scan, err := c.Scan(ctx, "111")
	if err != nil || scan.ProductName != "Cola" {
		t.Fatalf("Scan: %+v %v", scan, err)
	}
	if entry, err := c.HistoryEntry(ctx, scan.ScanID); err != nil || entry.Barcode != "111" {
		t.Fatalf("HistoryEntry: %+v %v", entry, err)
	}
	if product, err := c.Product(ctx, "111"); err != nil || product.Recommendations[0] != "Sparkling water" {
		t.Fatalf("Product: %+v %v", product, err)
	}
	if _, err := c.Grade(ctx, "Z"); !IsNotFound(err) {
		t.Fatalf("expected missing grade, got %v", err)
	}
}

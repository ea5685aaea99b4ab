package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"receipt-drop/internal/config"
	"receipt-drop/internal/logging"
)

func testConfig(t *testing.T, databaseURL string) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Addr = "127.0.0.1:0"
	cfg.BaseURL = "http://receipts.test"
	cfg.Env = config.EnvDevelopment
	cfg.UploadDir = t.TempDir()
	cfg.DatabaseURL = databaseURL
	cfg.ConnectTimeout = 0
	return cfg
}

func receiptForm(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"employeeName":  "Jane Doe",
		"department":    "Finance",
		"purchaseDate":  "2024-03-01",
		"vendor":        "Staples",
		"amount":        "42.50",
		"paymentMethod": "credit card",
		"category":      "Supplies",
		"description":   "printer paper",
	} {
		_ = mw.WriteField(k, v)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="receipt"; filename="receipt.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 test receipt"))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

// TestAPIWorkflow drives upload, listing and download through the fully wired
// application.
func TestAPIWorkflow(t *testing.T) {
	for _, tc := range []struct {
		name string
		url  string
	}{
		{"memory", "memory://"},
		{"bolt", "bolt://" + filepath.Join(t.TempDir(), "receipts.db")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			a, err := newApp(ctx, testConfig(t, tc.url), logging.Discard())
			if err != nil {
				t.Fatalf("newApp: %v", err)
			}
			defer a.store.Close(ctx)

			ts := httptest.NewServer(a.srv.Handler())
			defer ts.Close()
			client := &http.Client{Timeout: 10 * time.Second}

			resp, err := client.Get(ts.URL + "/ready")
			if err != nil {
				t.Fatalf("ready: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("ready: status = %d", resp.StatusCode)
			}

			body, contentType := receiptForm(t)
			resp, err = client.Post(ts.URL+"/api/receipts", contentType, body)
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			var uploaded struct {
				Receipt struct {
					ID      string `json:"id"`
					FileURL string `json:"fileUrl"`
				} `json:"receipt"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK || uploaded.Receipt.ID == "" {
				t.Fatalf("upload: status = %d, receipt = %+v", resp.StatusCode, uploaded.Receipt)
			}

			resp, err = client.Get(ts.URL + "/api/receipts?q=staples")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var list struct {
				Count int `json:"count"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&list)
			resp.Body.Close()
			if list.Count != 1 {
				t.Errorf("list count = %d, want 1", list.Count)
			}

			u, err := url.Parse(uploaded.Receipt.FileURL)
			if err != nil {
				t.Fatal(err)
			}
			resp, err = client.Get(ts.URL + u.RequestURI())
			if err != nil {
				t.Fatalf("download: %v", err)
			}
			got, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK || string(got) != "%PDF-1.4 test receipt" {
				t.Errorf("download: status = %d, body = %q", resp.StatusCode, got)
			}
		})
	}
}

func TestNewApp_UnsupportedDatabase(t *testing.T) {
	_, err := newApp(context.Background(), testConfig(t, "redis://localhost:6379"), logging.Discard())
	if err == nil {
		t.Fatal("expected error for unsupported database scheme")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, "memory://")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.Discard()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	cfg := testConfig(t, "memory://")
	cfg.Addr = "256.0.0.1:99999"

	if err := run(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("expected listen error")
	}
}

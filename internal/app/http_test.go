package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cadence/pkg/cache"
	"cadence/pkg/config"
	"cadence/pkg/connectivity"
	"cadence/pkg/convmeta"
	"cadence/pkg/delivery"
	"cadence/pkg/models"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}

type stubMessageStore struct{}

func (stubMessageStore) Insert(ctx context.Context, m models.Message) error { return nil }
func (stubMessageStore) Query(ctx context.Context, conversationID string) ([]models.Message, error) {
	return nil, nil
}
func (stubMessageStore) Delete(ctx context.Context, id string) error { return nil }

type stubConvStore struct{}

func (stubConvStore) Update(ctx context.Context, conversationID string, fields convmeta.Fields) error {
	return nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	conn := connectivity.New(true)
	meta := convmeta.New(stubConvStore{}, 0)
	orch := delivery.New(delivery.Config{UserID: "user-1"}, stubGenerator{}, stubMessageStore{}, meta, conn, db)

	t.Cleanup(func() {
		orch.Close()
		meta.Close()
		_ = db.Close()
	})
	return &App{
		cfg:     &config.Config{},
		version: "test",
		db:      db,
		conn:    conn,
		meta:    meta,
		orch:    orch,
	}
}

func TestHealthAndReady(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/statusz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestConnectivityToggle(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	req, _ := http.NewRequest("PUT", srv.URL+"/v1/connectivity", strings.NewReader(`{"online":false}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if a.conn.IsOnline() {
		t.Fatal("connectivity not updated")
	}
}

func TestSendValidation(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	// missing companion id
	resp, err := http.Post(srv.URL+"/v1/conversations/c1/messages", "application/json",
		strings.NewReader(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/conversations/c1/messages", "application/json",
		strings.NewReader(`{"companion_id":"comp-1","text":"hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}
}

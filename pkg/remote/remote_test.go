package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cadence/pkg/convmeta"
	"cadence/pkg/models"
)

type capturedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newBackend(t *testing.T, status int, respond any) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		mu.Unlock()
		w.WriteHeader(status)
		if respond != nil {
			_ = json.NewEncoder(w).Encode(respond)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestMessagesInsertAndDelete(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusCreated, nil)
	msgs := NewMessages(NewClient(srv.URL, "key-123", time.Second))

	m := models.Message{
		ID: "m1", ConversationID: "c1", CompanionID: "comp-1",
		UserID: "u1", Fragments: []string{"hi"}, TS: 42,
	}
	if err := msgs.Insert(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := msgs.Delete(context.Background(), "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got := *reqs
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0].method != "POST" || got[0].path != "/v1/messages" {
		t.Fatalf("insert request wrong: %s %s", got[0].method, got[0].path)
	}
	if got[0].auth != "Bearer key-123" {
		t.Fatalf("auth header = %q", got[0].auth)
	}
	var sent models.Message
	if err := json.Unmarshal(got[0].body, &sent); err != nil || sent.ID != "m1" {
		t.Fatalf("insert body wrong: %s (%v)", got[0].body, err)
	}
	if got[1].method != "DELETE" || got[1].path != "/v1/messages/m1" {
		t.Fatalf("delete request wrong: %s %s", got[1].method, got[1].path)
	}
}

func TestMessagesQuery(t *testing.T) {
	want := []models.Message{
		{ID: "m1", ConversationID: "c1", CompanionID: "comp-1", UserID: "u1", Fragments: []string{"hi"}, TS: 1},
		{ID: "m2", ConversationID: "c1", CompanionID: "comp-1", UserID: "u1", IsBot: true, Fragments: []string{"hello"}, TS: 2},
	}
	srv, reqs := newBackend(t, http.StatusOK, map[string]any{"messages": want})
	msgs := NewMessages(NewClient(srv.URL, "", time.Second))

	got, err := msgs.Query(context.Background(), "c1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("query result wrong: %+v", got)
	}
	if (*reqs)[0].path != "/v1/conversations/c1/messages" {
		t.Fatalf("query path = %q", (*reqs)[0].path)
	}
}

func TestMessagesErrorStatus(t *testing.T) {
	srv, _ := newBackend(t, http.StatusInternalServerError, nil)
	msgs := NewMessages(NewClient(srv.URL, "", time.Second))

	if err := msgs.Insert(context.Background(), models.Message{ID: "m1"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestConversationsUpdate(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusOK, nil)
	convs := NewConversations(NewClient(srv.URL, "", time.Second))

	fields := convmeta.Fields{LastMessage: "see you!", UnreadDelta: 3, LastUpdated: 99}
	if err := convs.Update(context.Background(), "c1", fields); err != nil {
		t.Fatalf("update: %v", err)
	}

	got := *reqs
	if got[0].method != "PATCH" || got[0].path != "/v1/conversations/c1" {
		t.Fatalf("update request wrong: %s %s", got[0].method, got[0].path)
	}
	var sent convmeta.Fields
	if err := json.Unmarshal(got[0].body, &sent); err != nil || sent.UnreadDelta != 3 {
		t.Fatalf("update body wrong: %s (%v)", got[0].body, err)
	}
}

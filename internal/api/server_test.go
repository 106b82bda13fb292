package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"marketchat/internal/database"
	"marketchat/internal/session"
	"marketchat/pkg/types"
)

type stubPresence struct {
	users []types.OnlineUser
}

func (p *stubPresence) ListOnline() []types.OnlineUser { return p.users }
func (p *stubPresence) Stats() map[string]int {
	return map[string]int{"online_users": len(p.users), "total_connections": len(p.users)}
}

func newTestServer(t *testing.T, presence *stubPresence) *Server {
	t.Helper()
	store, err := database.NewFallbackStore(filepath.Join(t.TempDir(), "chat.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if presence == nil {
		presence = &stubPresence{}
	}
	return NewServer(session.NewManager(store), presence, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reader).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createTestSession(t *testing.T, srv *Server) *types.ChatSession {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/chat/sessions", createSessionRequest{
		VendorID: "v1", VendorName: "Ada", ClientID: "c1", ClientName: "Casey",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[sessionResponse](t, rec).Session
}

func TestServer_CreateSessionReturnsExistingForPair(t *testing.T) {
	srv := newTestServer(t, nil)

	first := createTestSession(t, srv)
	second := createTestSession(t, srv)
	if first.ID != second.ID {
		t.Errorf("pair should map to one session: %s vs %s", first.ID, second.ID)
	}
}

func TestServer_CreateSessionValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, tc := range []struct {
		name string
		req  createSessionRequest
	}{
		{"bad vendor id", createSessionRequest{VendorID: "no spaces!", VendorName: "A", ClientID: "c1", ClientName: "C"}},
		{"same participant", createSessionRequest{VendorID: "u1", VendorName: "A", ClientID: "u1", ClientName: "C"}},
		{"missing ids", createSessionRequest{VendorName: "A", ClientName: "C"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/chat/sessions", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestServer_PostAndFetchHistory(t *testing.T) {
	srv := newTestServer(t, nil)
	chat := createTestSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/chat/sessions/"+chat.ID+"/messages", postMessageRequest{
		SenderID: "c1", Message: "hello vendor",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post message: status %d, body %s", rec.Code, rec.Body.String())
	}
	posted := decodeBody[messageResponse](t, rec).ChatMessage
	if posted.RecipientID != "v1" || posted.SenderRole != types.RoleClient {
		t.Errorf("unexpected message routing: %+v", posted)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/chat/sessions/"+chat.ID+"?user_id=v1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get history: status %d, body %s", rec.Code, rec.Body.String())
	}
	history := decodeBody[historyResponse](t, rec)
	if len(history.Messages) != 1 || history.Messages[0].Message != "hello vendor" {
		t.Errorf("unexpected history: %+v", history.Messages)
	}
	if !history.Messages[0].Read {
		t.Error("fetching history should mark the reader's messages read")
	}
	if history.Session.VendorUnread != 0 {
		t.Errorf("vendor unread should be reset, got %d", history.Session.VendorUnread)
	}
}

func TestServer_UnreadCounterLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	chat := createTestSession(t, srv)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/chat/sessions/"+chat.ID+"/messages", postMessageRequest{
			SenderID: "c1", Message: "ping",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("post: status %d", rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/chat/sessions?user_id=v1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	listed := decodeBody[listSessionsResponse](t, rec)
	if len(listed.Sessions) != 1 || listed.Sessions[0].VendorUnread != 2 {
		t.Fatalf("expected vendor unread 2, got %+v", listed.Sessions)
	}

	// Reading the history resets the counter for subsequent lists.
	doJSON(t, srv, http.MethodGet, "/api/chat/sessions/"+chat.ID+"?user_id=v1", nil)
	rec = doJSON(t, srv, http.MethodGet, "/api/chat/sessions?user_id=v1", nil)
	listed = decodeBody[listSessionsResponse](t, rec)
	if listed.Sessions[0].VendorUnread != 0 {
		t.Errorf("vendor unread = %d after read, want 0", listed.Sessions[0].VendorUnread)
	}
}

func TestServer_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t, nil)
	chat := createTestSession(t, srv)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"history of missing chat", http.MethodGet, "/api/chat/sessions/missing?user_id=v1", nil, http.StatusNotFound},
		{"history as outsider", http.MethodGet, "/api/chat/sessions/" + chat.ID + "?user_id=intruder", nil, http.StatusForbidden},
		{"history without user_id", http.MethodGet, "/api/chat/sessions/" + chat.ID, nil, http.StatusBadRequest},
		{"list without user_id", http.MethodGet, "/api/chat/sessions", nil, http.StatusBadRequest},
		{"post to missing chat", http.MethodPost, "/api/chat/sessions/missing/messages", postMessageRequest{SenderID: "c1", Message: "x"}, http.StatusNotFound},
		{"post as outsider", http.MethodPost, "/api/chat/sessions/" + chat.ID + "/messages", postMessageRequest{SenderID: "intruder", Message: "x"}, http.StatusForbidden},
		{"post empty message", http.MethodPost, "/api/chat/sessions/" + chat.ID + "/messages", postMessageRequest{SenderID: "c1"}, http.StatusBadRequest},
		{"post without sender", http.MethodPost, "/api/chat/sessions/" + chat.ID + "/messages", postMessageRequest{Message: "x"}, http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			if body := decodeBody[map[string]string](t, rec); body["error"] == "" {
				t.Error("error responses should carry an error field")
			}
		})
	}
}

func TestServer_OnlineUsers(t *testing.T) {
	presence := &stubPresence{users: []types.OnlineUser{
		{UserID: "v1", Name: "Ada", Role: types.RoleVendor, Online: true},
	}}
	srv := newTestServer(t, presence)

	rec := doJSON(t, srv, http.MethodGet, "/api/chat/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[onlineUsersResponse](t, rec)
	if len(got.Users) != 1 || got.Users[0].UserID != "v1" {
		t.Errorf("unexpected users: %+v", got.Users)
	}

	// Empty presence serializes as an empty array, not null.
	srv = newTestServer(t, nil)
	rec = doJSON(t, srv, http.MethodGet, "/api/chat/users", nil)
	if body := rec.Body.String(); !bytes.Contains([]byte(body), []byte(`"users":[]`)) {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestServer_HealthAndCORS(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	health := decodeBody[map[string]any](t, rec)
	if health["status"] != "healthy" {
		t.Errorf("unexpected health payload: %v", health)
	}

	rec = doJSON(t, srv, http.MethodOptions, "/api/chat/users", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

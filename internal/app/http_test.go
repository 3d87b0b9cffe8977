package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestServer(svc *Service) *HTTPServer {
	return NewHTTPServer(svc, "*")
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	payload := map[string]any{}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	}
	return rr, payload
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newTestService(newFakeStore()))
	rr, payload := doJSON(t, server, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK || payload["ok"] != true {
		t.Fatalf("health = %d %v", rr.Code, payload)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	server := newTestServer(newTestService(fs))

	rr, payload := doJSON(t, server, http.MethodGet, "/api/pages", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %v", rr.Code, payload)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestSignInAndSessionRoundTrip(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := fs.users["usr-1"]
	user.PasswordHash = string(hash)
	fs.users["usr-1"] = user
	server := newTestServer(newTestService(fs))

	rr, payload := doJSON(t, server, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "avery@changes.test",
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad password, got %d %v", rr.Code, payload)
	}

	rr, payload = doJSON(t, server, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "avery@changes.test",
		"password": "correct horse",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin = %d %v", rr.Code, payload)
	}
	token, _ := payload["token"].(string)
	if token == "" || payload["refreshToken"] == "" {
		t.Fatalf("expected a token pair, got %v", payload)
	}

	rr, payload = doJSON(t, server, http.MethodGet, "/api/session", token, nil)
	if rr.Code != http.StatusOK || payload["userId"] != "usr-1" {
		t.Fatalf("session = %d %v", rr.Code, payload)
	}

	rr, payload = doJSON(t, server, http.MethodGet, "/api/pages", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pages = %d %v", rr.Code, payload)
	}
}

func TestMoveEndpoint(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	svc := newTestService(fs)
	server := newTestServer(svc)

	session, err := svc.issueSession(context.Background(), fs.users["usr-1"])
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rr, payload := doJSON(t, server, http.MethodPost, "/api/items/itm-3/move", session.Token, map[string]string{
		"overItemId": "itm-1",
		"placement":  "before",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("move = %d %v", rr.Code, payload)
	}
	if payload["itemId"] != "itm-3" {
		t.Fatalf("unexpected itemId: %v", payload)
	}
	columns, _ := payload["columns"].(map[string]any)
	column, _ := columns["col-a"].([]any)
	if len(column) != 3 {
		t.Fatalf("expected 3 items in col-a, got %v", columns)
	}
	first, _ := column[0].(map[string]any)
	if first["id"] != "itm-3" || first["position"] != float64(1) {
		t.Fatalf("expected itm-3 at position 1, got %v", first)
	}
	if _, ok := payload["revision"]; !ok {
		t.Fatalf("expected a board revision in the response")
	}

	// Replaying the same drop against the updated board is idempotent, not
	// a failure.
	rr, payload = doJSON(t, server, http.MethodPost, "/api/items/itm-3/move", session.Token, map[string]string{
		"overItemId": "itm-1",
		"placement":  "before",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("repeat move = %d %v", rr.Code, payload)
	}
}

func TestPublicBoardVisibility(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	server := newTestServer(newTestService(fs))

	rr, payload := doJSON(t, server, http.MethodGet, "/api/public/boards/brd-1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("public board = %d %v", rr.Code, payload)
	}
	columns, _ := payload["columns"].([]any)
	if len(columns) != 2 {
		t.Fatalf("expected 2 columns, got %v", payload)
	}

	board := fs.boards["brd-1"]
	board.IsPublic = false
	fs.boards["brd-1"] = board
	rr, _ = doJSON(t, server, http.MethodGet, "/api/public/boards/brd-1", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a private board, got %d", rr.Code)
	}
}

func TestPublicVoteEndpoint(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	server := newTestServer(newTestService(fs))

	rr, payload := doJSON(t, server, http.MethodPost, "/api/public/items/itm-1/vote", "", nil)
	if rr.Code != http.StatusOK || payload["voted"] != true {
		t.Fatalf("vote = %d %v", rr.Code, payload)
	}
	rr, payload = doJSON(t, server, http.MethodPost, "/api/public/items/itm-1/vote", "", nil)
	if rr.Code != http.StatusOK || payload["voted"] != false {
		t.Fatalf("second vote = %d %v", rr.Code, payload)
	}
}

func TestSubscribeValidatesAddress(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	server := newTestServer(newTestService(fs))

	rr, payload := doJSON(t, server, http.MethodPost, "/api/public/pages/acme/subscribe", "", map[string]string{
		"email": "not-an-address",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a bad address, got %d %v", rr.Code, payload)
	}

	rr, payload = doJSON(t, server, http.MethodPost, "/api/public/pages/acme/subscribe", "", map[string]string{
		"email": "reader@example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("subscribe = %d %v", rr.Code, payload)
	}
	if len(fs.subscribers) != 1 {
		t.Fatalf("expected one subscriber, got %d", len(fs.subscribers))
	}
}

func TestGitHubWebhookSignature(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	svc.cfg.GitHubWebhookSecret = "hook-secret"
	server := newTestServer(svc)

	body := `{"action":"closed","pull_request":{"merged":false}}`

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad signature, got %d", rr.Code)
	}

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write([]byte(body))
	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected a verified delivery to be acknowledged, got %d", rr.Code)
	}
}

func TestDraftEndpointWithoutAI(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)
	server := newTestServer(svc)

	session, err := svc.issueSession(context.Background(), fs.users["usr-1"])
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	rr, payload := doJSON(t, server, http.MethodPost, "/api/ai/draft", session.Token, map[string]string{
		"notes": "shipped the new board",
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without an AI client, got %d %v", rr.Code, payload)
	}
}

func TestCreateBoardSeedsDefaultColumns(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)
	server := newTestServer(svc)

	session, err := svc.issueSession(context.Background(), fs.users["usr-1"])
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	rr, payload := doJSON(t, server, http.MethodPost, "/api/pages/page-1/boards", session.Token, map[string]any{
		"title":    "Roadmap",
		"isPublic": true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create board = %d %v", rr.Code, payload)
	}
	if len(fs.columns) != 3 {
		t.Fatalf("expected 3 seeded columns, got %d", len(fs.columns))
	}
	names := map[string]bool{}
	for _, column := range fs.columns {
		names[column.Name] = true
	}
	for _, want := range []string{"Planned", "In Progress", "Done"} {
		if !names[want] {
			t.Fatalf("missing seeded column %q, have %v", want, names)
		}
	}
}

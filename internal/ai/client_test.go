package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	return c, srv
}

func TestProofread(t *testing.T) {
	var gotAuth string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("proofread must not stream")
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Fixed text."}}]}`)
	})
	defer srv.Close()

	out, err := c.Proofread(context.Background(), "Fixd text.")
	if err != nil {
		t.Fatalf("Proofread() error = %v", err)
	}
	if out != "Fixed text." {
		t.Errorf("Proofread() = %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}

func TestSuggestTitleTrimsQuotes(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"\"Board Moves Ship\"\n"}}]}`)
	})
	defer srv.Close()

	title, err := c.SuggestTitle(context.Background(), "notes")
	if err != nil {
		t.Fatalf("SuggestTitle() error = %v", err)
	}
	if title != "Board Moves Ship" {
		t.Errorf("SuggestTitle() = %q", title)
	}
}

func TestDraftChangelogStreams(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("draft must request streaming")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer srv.Close()

	var b strings.Builder
	err := c.DraftChangelog(context.Background(), "shipped v2", func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("DraftChangelog() error = %v", err)
	}
	if b.String() != "Hello world" {
		t.Errorf("streamed content = %q", b.String())
	}
}

func TestDraftChangelogStopsOnChunkError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n\n")
	})
	defer srv.Close()

	calls := 0
	err := c.DraftChangelog(context.Background(), "notes", func(chunk string) error {
		calls++
		return fmt.Errorf("client gone")
	})
	if err == nil {
		t.Fatal("expected chunk error to propagate")
	}
	if calls != 1 {
		t.Errorf("expected streaming to stop after first chunk error, got %d calls", calls)
	}
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.Proofread(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(Config{})
	if c.IsConfigured() {
		t.Fatal("empty config must not report configured")
	}
	if _, err := c.Proofread(context.Background(), "x"); err == nil {
		t.Error("expected error from unconfigured Proofread")
	}
	if err := c.DraftChangelog(context.Background(), "x", func(string) error { return nil }); err == nil {
		t.Error("expected error from unconfigured DraftChangelog")
	}
}

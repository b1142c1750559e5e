package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/sync"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(config.Credentials{
		BaseURL:  srv.URL,
		Username: "docs@example.com",
		APIToken: "token",
	}, log.New(io.Discard, "", 0))
	c.retry = RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
	return c
}

func pageJSON(id, title string, version int, content string) string {
	return fmt.Sprintf(`{
		"id": %q, "title": %q,
		"version": {"number": %d},
		"body": {"storage": {"value": %q}}
	}`, id, title, version, content)
}

func emptyList(w http.ResponseWriter) {
	fmt.Fprint(w, `{"results": []}`)
}

func requireAuth(t *testing.T, r *http.Request) {
	t.Helper()
	user, pass, ok := r.BasicAuth()
	if !ok || user != "docs@example.com" || pass != "token" {
		t.Errorf("missing or wrong basic auth on %s", r.URL.Path)
	}
}

func TestGetDocument(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/123", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		if got := r.URL.Query().Get("expand"); got != "body.storage,version" {
			t.Errorf("expand = %q", got)
		}
		fmt.Fprint(w, pageJSON("123", "Guide", 4, "<p>guide</p>"))
	})
	mux.HandleFunc("/rest/api/content/123/child/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{"id": "200"}, {"id": "201"}]}`)
	})
	mux.HandleFunc("/rest/api/content/123/child/attachment", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{
			"id": "a1", "title": "flow.png",
			"extensions": {"mediaType": "image/png"},
			"_links": {"download": "/download/attachments/123/flow.png"}
		}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	doc, err := newTestClient(t, srv).GetDocument(context.Background(), "123")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.ID != "123" || doc.Title != "Guide" || doc.Version != 4 {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Content != "<p>guide</p>" {
		t.Errorf("content = %q", doc.Content)
	}
	if len(doc.ChildIDs) != 2 || doc.ChildIDs[0] != "200" || doc.ChildIDs[1] != "201" {
		t.Errorf("children = %v", doc.ChildIDs)
	}
	if len(doc.Attachments) != 1 || doc.Attachments[0].Filename != "flow.png" || doc.Attachments[0].MediaType != "image/png" {
		t.Errorf("attachments = %+v", doc.Attachments)
	}
}

func TestChildPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageJSON("123", "Guide", 1, ""))
	})
	mux.HandleFunc("/rest/api/content/123/child/page", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		switch start {
		case 0:
			fmt.Fprint(w, `{"results": [{"id": "1"}, {"id": "2"}]}`)
		case 2:
			fmt.Fprint(w, `{"results": [{"id": "3"}]}`)
		default:
			t.Errorf("unexpected start %d", start)
			emptyList(w)
		}
	})
	mux.HandleFunc("/rest/api/content/123/child/attachment", func(w http.ResponseWriter, r *http.Request) {
		emptyList(w)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	c.limit = 2

	doc, err := c.GetDocument(context.Background(), "123")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if len(doc.ChildIDs) != 3 {
		t.Errorf("children = %v, want 3 across two pages", doc.ChildIDs)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetDocument(context.Background(), "999")
	if !errors.Is(err, sync.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAuthFailureNamesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetDocument(context.Background(), "123")
	if !errors.Is(err, sync.ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
	if !strings.Contains(err.Error(), config.EnvAPIToken) {
		t.Errorf("error should point at the credentials to check: %v", err)
	}
}

func TestUpdateDocument(t *testing.T) {
	var gotUpdate updateRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/123", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, pageJSON("123", "Guide", 7, ""))
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&gotUpdate); err != nil {
				t.Errorf("decode update: %v", err)
			}
			fmt.Fprint(w, pageJSON("123", "Guide", 8, ""))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	newVersion, err := newTestClient(t, srv).UpdateDocument(context.Background(), "123", "<p>new</p>")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if newVersion != 8 {
		t.Errorf("newVersion = %d, want 8", newVersion)
	}
	if gotUpdate.Version.Number != 8 {
		t.Errorf("submitted version = %d, want current+1 = 8", gotUpdate.Version.Number)
	}
	if gotUpdate.Title != "Guide" {
		t.Errorf("submitted title = %q, want current title carried over", gotUpdate.Title)
	}
	if gotUpdate.Body.Storage.Representation != "storage" {
		t.Errorf("representation = %q", gotUpdate.Body.Storage.Representation)
	}
	if gotUpdate.Body.Storage.Value != "<p>new</p>" {
		t.Errorf("submitted body = %q", gotUpdate.Body.Storage.Value)
	}
}

func TestUpdateConflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/123", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, pageJSON("123", "Guide", 7, ""))
			return
		}
		w.WriteHeader(http.StatusConflict)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestClient(t, srv).UpdateDocument(context.Background(), "123", "<p>new</p>")
	if !errors.Is(err, sync.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/123", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, pageJSON("123", "Guide", 1, ""))
	})
	mux.HandleFunc("/rest/api/content/123/child/page", func(w http.ResponseWriter, r *http.Request) {
		emptyList(w)
	})
	mux.HandleFunc("/rest/api/content/123/child/attachment", func(w http.ResponseWriter, r *http.Request) {
		emptyList(w)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if _, err := newTestClient(t, srv).GetDocument(context.Background(), "123"); err != nil {
		t.Fatalf("GetDocument after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetDocument(context.Background(), "123")
	if err == nil {
		t.Fatal("expected error")
	}
	var te *sync.TransportError
	if !errors.As(err, &te) || te.Status != http.StatusBadRequest {
		t.Errorf("err = %v, want TransportError with status 400", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want exactly 1 for a 4xx", attempts)
	}
}

func TestGetAttachmentUsesCachedLink(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	metadataFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageJSON("123", "Guide", 1, ""))
	})
	mux.HandleFunc("/rest/api/content/123/child/page", func(w http.ResponseWriter, r *http.Request) {
		emptyList(w)
	})
	mux.HandleFunc("/rest/api/content/123/child/attachment", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{
			"id": "a1", "title": "flow.png",
			"_links": {"download": "/download/attachments/123/flow.png"}
		}]}`)
	})
	mux.HandleFunc("/rest/api/content/a1", func(w http.ResponseWriter, r *http.Request) {
		metadataFetches++
		fmt.Fprint(w, `{"id": "a1", "title": "flow.png", "_links": {"download": "/download/attachments/123/flow.png"}}`)
	})
	mux.HandleFunc("/download/attachments/123/flow.png", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.GetDocument(context.Background(), "123"); err != nil {
		t.Fatalf("GetDocument: %v", err)
	}

	data, err := c.GetAttachment(context.Background(), "123", "a1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("downloaded %v, want %v", data, payload)
	}
	if metadataFetches != 0 {
		t.Errorf("metadata fetched %d times despite the cached listing", metadataFetches)
	}
}

func TestGetAttachmentColdCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/a1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "a1", "title": "notes.txt", "_links": {"download": "/download/attachments/123/notes.txt"}}`)
	})
	mux.HandleFunc("/download/attachments/123/notes.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "bytes")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	data, err := newTestClient(t, srv).GetAttachment(context.Background(), "123", "a1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if string(data) != "bytes" {
		t.Errorf("downloaded %q", data)
	}
}

func TestRateLimitSurfacesHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.retry.MaxAttempts = 1

	_, err := c.GetDocument(context.Background(), "123")
	var te *sync.TransportError
	if !errors.As(err, &te) || te.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want TransportError with status 429", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should explain the rate limit: %v", err)
	}
}

func TestTransportErrorWrapsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(t, srv)
	c.retry.MaxAttempts = 1

	_, err := c.GetDocument(context.Background(), "123")
	var te *sync.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Status != 0 {
		t.Errorf("network failure should carry no HTTP status, got %d", te.Status)
	}
}

package footprint_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/money626/epidemic-servey-chatbot/common/retry"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/footprint"
)

const listPage = `<html><body>
<div class="content-boxes-v3"><a href="/Bulletin/Detail/newest">newest</a></div>
<div class="content-boxes-v3"><a href="/Bulletin/Detail/older">older</a></div>
</body></html>`

const articlePage = `<html><body>
<img src="/images/logo.png">
<img src="/Uploads/a.png">
<p>text</p>
<img src="/Uploads/b.png">
<img src="https://elsewhere.example/Uploads/c.png">
</body></html>`

var fastRetry = retry.Policy{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond}

func newSite(t *testing.T, article string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var keyword atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/Bulletin/List/test", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		keyword.Store(r.FormValue("keyword"))
		w.Write([]byte(listPage))
	})
	mux.HandleFunc("/Bulletin/Detail/newest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(article))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &keyword
}

func newFetcher(srv *httptest.Server) *footprint.Fetcher {
	return footprint.New(footprint.Config{
		ListURL:    srv.URL + "/Bulletin/List/test",
		Origin:     srv.URL,
		Keyword:    "足跡",
		HTTPClient: srv.Client(),
		Retry:      fastRetry,
	})
}

func TestFetch(t *testing.T) {
	srv, keyword := newSite(t, articlePage)

	paths, err := newFetcher(srv).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []string{"/Uploads/a.png", "/Uploads/b.png"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if got, _ := keyword.Load().(string); got != "足跡" {
		t.Errorf("keyword posted = %q", got)
	}
}

func TestFetch_NoImages(t *testing.T) {
	srv, _ := newSite(t, `<html><body><img src="/images/logo.png"></body></html>`)

	paths, err := newFetcher(srv).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no paths, got %v", paths)
	}
}

func TestFetch_NoBulletinLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>nothing</p></body></html>`))
	}))
	defer srv.Close()

	_, err := newFetcher(srv).Fetch(context.Background())
	if !errors.Is(err, footprint.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestFetch_ServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newFetcher(srv).Fetch(context.Background())
	if !errors.Is(err, footprint.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts on 5xx, got %d", got)
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := newFetcher(srv).Fetch(context.Background()); !errors.Is(err, footprint.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt on 404, got %d", got)
	}
}

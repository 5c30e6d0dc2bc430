package web_search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/landlord/tools/web_search/brave"
	"github.com/mohammad-safakhou/landlord/tools/web_search/models"
	"github.com/mohammad-safakhou/landlord/tools/web_search/serper"
)

type fakeSearcher struct {
	results []models.Result
	err     error
	gotQ    string
}

func (f *fakeSearcher) Discover(_ context.Context, q string, _ int) ([]models.Result, error) {
	f.gotQ = q
	return f.results, f.err
}

func TestToolRendersSanitisedResults(t *testing.T) {
	fs := &fakeSearcher{results: []models.Result{
		{Title: "<b>Ace</b> Roofing", URL: "https://ace.example", Snippet: "Emergency <script>x()</script>roof repair"},
		{Title: "Bob's Gutters"},
	}}
	out, err := NewTool(fs, 3).Run(context.Background(), "  roof   leak <i>3B</i> ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fs.gotQ != "roof leak 3B" {
		t.Fatalf("query = %q", fs.gotQ)
	}
	want := "1. Ace Roofing (https://ace.example)\n   Emergency roof repair\n2. Bob's Gutters"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestToolWrapsSearchError(t *testing.T) {
	_, err := NewTool(&fakeSearcher{err: errors.New("quota")}, 3).Run(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "web search: quota") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDirectoryUsesSerperPlaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/places" || r.Header.Get("X-API-KEY") != "k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["q"] != "plumber near Austin contact information" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"places":[
			{"title":"Austin Plumbing","address":"1 Main St","category":"Plumber","rating":4.6,"ratingCount":120,"phoneNumber":"(512) 555-0101","website":"https://ap.example"},
			{"title":"Austin Plumbing","phoneNumber":"(512) 555-0101"},
			{"title":"Lone Star Drains","category":"Plumber","rating":4.1}
		]}`))
	}))
	defer srv.Close()

	dir := NewDirectory(serper.Search{ApiKey: "k", BaseURL: srv.URL}, 5)
	workers, err := dir.FindWorkers(context.Background(), "plumber near Austin contact information")
	if err != nil {
		t.Fatalf("FindWorkers: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("expected 2 deduplicated workers, got %+v", workers)
	}
	if workers[0].Name != "Austin Plumbing" || workers[0].Reviews != 120 || workers[0].Phone != "(512) 555-0101" {
		t.Fatalf("unexpected first worker %+v", workers[0])
	}
}

func TestDirectoryFallsBackToOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "electrician contact information" || r.URL.Query().Get("count") != "2" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Sparky Ltd","url":"https://sparky.example","description":"24h"},{"title":"Sparky Ltd | Home","url":"https://Sparky.example/?utm_source=ads","description":"24h"}]}}`))
	}))
	defer srv.Close()

	dir := NewDirectory(brave.Search{ApiKey: "k", BaseURL: srv.URL}, 2)
	workers, err := dir.FindWorkers(context.Background(), "electrician contact information")
	if err != nil {
		t.Fatalf("FindWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].Website != "https://sparky.example" {
		t.Fatalf("unexpected workers %+v", workers)
	}
}

func TestSerperStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := serper.Search{BaseURL: srv.URL}.Discover(context.Background(), "x", 1)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewWebSearcher(t *testing.T) {
	if _, err := NewWebSearcher("bing", "k", 0); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	s, err := NewWebSearcher(SerperProvider, "k", 0)
	if err != nil {
		t.Fatalf("NewWebSearcher: %v", err)
	}
	if _, ok := s.(PlaceSearcher); !ok {
		t.Fatalf("serper should support places")
	}
}

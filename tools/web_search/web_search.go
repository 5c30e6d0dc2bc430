package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/helpers"
	"github.com/mohammad-safakhou/landlord/tools/web_search/brave"
	"github.com/mohammad-safakhou/landlord/tools/web_search/models"
	"github.com/mohammad-safakhou/landlord/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

// PlaceSearcher is implemented by providers with a local business index.
type PlaceSearcher interface {
	Places(ctx context.Context, q string, k int) ([]models.Place, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	hc := &http.Client{Timeout: timeout}
	switch provider {
	case SerperProvider, "":
		return serper.Search{ApiKey: apiKey, HTTPClient: hc}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, HTTPClient: hc}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

const (
	maxQueryRunes   = 300
	maxSnippetRunes = 280
)

// Tool exposes a WebSearcher to the pipeline's tool augmentor.
type Tool struct {
	searcher WebSearcher
	k        int
}

// NewTool wraps searcher; k bounds the number of results per call.
func NewTool(searcher WebSearcher, k int) *Tool {
	if k <= 0 {
		k = 5
	}
	return &Tool{searcher: searcher, k: k}
}

func (t *Tool) Name() string { return "web_search" }

// Run searches for input and renders the hits as plain text.
func (t *Tool) Run(ctx context.Context, input string) (string, error) {
	q := helpers.PlainText(input, maxQueryRunes)
	if q == "" {
		return "", nil
	}
	results, err := t.searcher.Discover(ctx, q, t.k)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, helpers.PlainText(r.Title, 0))
		if r.URL != "" {
			fmt.Fprintf(&b, " (%s)", r.URL)
		}
		if snippet := helpers.PlainText(r.Snippet, maxSnippetRunes); snippet != "" {
			b.WriteString("\n   " + snippet)
		}
	}
	return b.String(), nil
}

// Directory finds maintenance workers. It prefers the provider's places index
// and falls back to organic results.
type Directory struct {
	searcher WebSearcher
	k        int
}

func NewDirectory(searcher WebSearcher, k int) *Directory {
	if k <= 0 {
		k = 5
	}
	return &Directory{searcher: searcher, k: k}
}

func (d *Directory) FindWorkers(ctx context.Context, query string) ([]core.WorkerListing, error) {
	if ps, ok := d.searcher.(PlaceSearcher); ok {
		places, err := ps.Places(ctx, query, d.k)
		if err != nil {
			return nil, err
		}
		return dedupe(listingsFromPlaces(places)), nil
	}
	results, err := d.searcher.Discover(ctx, query, d.k)
	if err != nil {
		return nil, err
	}
	out := make([]core.WorkerListing, 0, len(results))
	for _, r := range results {
		out = append(out, core.WorkerListing{
			Name:    helpers.PlainText(r.Title, 120),
			Website: canonicalWebsite(r.URL),
		})
	}
	return dedupe(out), nil
}

func listingsFromPlaces(places []models.Place) []core.WorkerListing {
	out := make([]core.WorkerListing, 0, len(places))
	for _, p := range places {
		out = append(out, core.WorkerListing{
			Name:    helpers.PlainText(p.Title, 120),
			Type:    helpers.PlainText(p.Category, 60),
			Rating:  p.Rating,
			Reviews: p.RatingCount,
			Address: helpers.PlainText(p.Address, 200),
			Phone:   strings.TrimSpace(p.Phone),
			Website: canonicalWebsite(p.Website),
		})
	}
	return out
}

func dedupe(in []core.WorkerListing) []core.WorkerListing {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, l := range in {
		if l.Name == "" {
			continue
		}
		key := strings.ToLower(l.Name) + "|" + l.Phone
		if l.Phone == "" && l.Website != "" {
			key = l.Website
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

func canonicalWebsite(raw string) string {
	if c, err := helpers.CanonicalURL(raw); err == nil {
		return c
	}
	return strings.TrimSpace(raw)
}

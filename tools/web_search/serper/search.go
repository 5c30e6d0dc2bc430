package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/landlord/tools/web_search/models"
)

const DefaultBaseURL = "https://google.serper.dev"

type Search struct {
	ApiKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (s Search) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	hc := s.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("serper %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Discover returns up to k organic results for q.
func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serper.dev/ docs
	var raw map[string]any
	if err := s.post(ctx, "/search", map[string]any{"q": q, "num": k}, &raw); err != nil {
		return nil, err
	}
	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for _, it := range items {
			if len(out) >= k {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				Title: str(m["title"]), URL: str(m["link"]), Snippet: str(m["snippet"]),
			})
		}
	}
	return out, nil
}

// Places returns up to k local business listings for q.
func (s Search) Places(ctx context.Context, q string, k int) ([]models.Place, error) {
	var raw struct {
		Places []models.Place `json:"places"`
	}
	if err := s.post(ctx, "/places", map[string]any{"q": q, "num": k}, &raw); err != nil {
		return nil, err
	}
	if k > 0 && len(raw.Places) > k {
		raw.Places = raw.Places[:k]
	}
	return raw.Places, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"postai-api/internal/domain/entity"
)

const (
	bingEndpoint   = "https://api.bing.microsoft.com/v7.0/search"
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	serperEndpoint = "https://google.serper.dev/search"
)

// bing Bing Web Search v7
type bing struct {
	endpoint string
}

func (bing) name() string { return ProviderBing }

func (b bing) fetch(ctx context.Context, doer Doer, apiKey, query string, count int) ([]entity.SearchResult, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)

	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp, ProviderBing)
	if err != nil {
		return nil, err
	}

	var raw struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				Snippet string `json:"snippet"`
				URL     string `json:"url"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]entity.SearchResult, 0, len(raw.WebPages.Value))
	for _, w := range raw.WebPages.Value {
		out = append(out, entity.SearchResult{Title: w.Name, Snippet: w.Snippet, URL: w.URL})
	}
	return out, nil
}

// brave Brave Search API
type brave struct {
	endpoint string
}

func (brave) name() string { return ProviderBrave }

func (b brave) fetch(ctx context.Context, doer Doer, apiKey, query string, count int) ([]entity.SearchResult, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp, ProviderBrave)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]entity.SearchResult, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		out = append(out, entity.SearchResult{Title: r.Title, Snippet: r.Snippet, URL: r.URL})
	}
	return out, nil
}

// serper Serper (Google) API
type serper struct {
	endpoint string
}

func (serper) name() string { return ProviderSerper }

func (s serper) fetch(ctx context.Context, doer Doer, apiKey, query string, count int) ([]entity.SearchResult, error) {
	payload, err := json.Marshal(map[string]any{"q": query, "num": count})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", apiKey)

	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp, ProviderSerper)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]entity.SearchResult, 0, len(raw.Organic))
	for _, r := range raw.Organic {
		out = append(out, entity.SearchResult{Title: r.Title, Snippet: r.Snippet, URL: r.Link})
	}
	return out, nil
}

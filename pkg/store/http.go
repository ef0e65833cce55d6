package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/tapas/pkg/expr"
)

// Fetch describes an HTTP loader handler.
//
// With URL set, one GET is issued. {{path}} placeholders are filled from
// the state ({{payload}} from the action payload) and query escaped. With
// URL empty the payload must be a list of URLs, fetched concurrently; URLs
// already present under Existing (matched on their "url" field) are
// skipped.
type Fetch struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Result   string `json:"result,omitempty" yaml:"result,omitempty"`
	Existing string `json:"existing,omitempty" yaml:"existing,omitempty"`
	Success  string `json:"success" yaml:"success"`
	Failure  string `json:"failure,omitempty" yaml:"failure,omitempty"`
	Latest   bool   `json:"latest,omitempty" yaml:"latest,omitempty"`

	// Limit caps concurrent requests for list fetches. Zero means 4.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`

	Client *http.Client `json:"-" yaml:"-"`
}

var placeholder = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// Handler returns the store handler performing f.
func (f Fetch) Handler() Handler {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, api EffectAPI, a Action) error {
		result, err := f.do(ctx, client, api.State(), a)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if f.Failure != "" {
				api.Put(Action{Type: f.Failure, Payload: err.Error()})
			}
			return err
		}
		api.Put(Action{Type: f.Success, Payload: result})
		return nil
	}
}

func (f Fetch) do(ctx context.Context, client *http.Client, state any, a Action) (any, error) {
	if f.URL != "" {
		return f.get(ctx, client, f.expand(state, a))
	}

	urls, ok := a.Payload.([]any)
	if !ok {
		return nil, fmt.Errorf("fetch %s: payload is %T, want a list of urls", a.Type, a.Payload)
	}
	seen := map[string]bool{}
	if existing, ok := Lookup(state, f.Existing); ok && f.Existing != "" {
		if list, ok := existing.([]any); ok {
			for _, item := range list {
				if u, ok := expr.Field(item, "url"); ok {
					seen[expr.String(u)] = true
				}
			}
		}
	}
	var todo []string
	for _, u := range urls {
		if s := expr.String(u); !seen[s] {
			seen[s] = true
			todo = append(todo, s)
		}
	}

	results := make([]any, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	limit := f.Limit
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, u := range todo {
		i, u := i, u
		g.Go(func() error {
			v, err := f.get(gctx, client, u)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (f Fetch) expand(state any, a Action) string {
	return placeholder.ReplaceAllStringFunc(f.URL, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		var v any
		if path == "payload" {
			v = a.Payload
		} else if strings.HasPrefix(path, "payload.") {
			v, _ = Lookup(a.Payload, strings.TrimPrefix(path, "payload."))
		} else {
			v, _ = Lookup(state, path)
		}
		return url.QueryEscape(expr.String(v))
	})
}

func (f Fetch) get(ctx context.Context, client *http.Client, u string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	if f.Result == "" || f.URL == "" {
		return body, nil
	}
	v, ok := Lookup(body, f.Result)
	if !ok {
		return nil, fmt.Errorf("GET %s: no %q in response", u, f.Result)
	}
	return v, nil
}

// Option returns the store option registering f for action type t.
func (f Fetch) Option(t string) Option {
	if f.Latest {
		return WithLatestEffect(t, f.Handler())
	}
	return WithEffect(t, f.Handler())
}

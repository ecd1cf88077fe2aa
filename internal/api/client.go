// internal/api/client.go
//
// HTTP client for the condition API.
// Responsibilities:
//   - FetchValidityRelation: GET /api/valid_combos?max_gen=N
//   - FetchGenerationMetadata: GET /api/latest_metadata
//   - ValidateGuess: GET /api/test?identifier=ID&conditions=a,b
//   - Matches: GET /api/matches?guess=G&max_gen=N
//
// Failures never stop the game: each call returns a usable default alongside
// the error (empty relation, max_gen 1, false, no matches).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/dex"
)

// Client talks to one API root, e.g. http://localhost:3135.
type Client struct {
	root string
	http *http.Client
}

// New returns a client for root. A nil httpClient gets a 10s timeout default.
func New(root string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{root: strings.TrimRight(root, "/"), http: httpClient}
}

type comboItem struct {
	Combo []string `json:"combo"`
}

// FetchValidityRelation returns the relation offered for maxGen (0 means the
// server's largest generation).
func (c *Client) FetchValidityRelation(ctx context.Context, maxGen int) ([]conditions.Pair, error) {
	q := url.Values{}
	if maxGen > 0 {
		q.Set("max_gen", strconv.Itoa(maxGen))
	}
	var items []comboItem
	if err := c.get(ctx, "/api/valid_combos", q, &items); err != nil {
		return nil, err
	}
	out := make([]conditions.Pair, 0, len(items))
	for _, it := range items {
		if len(it.Combo) == 2 {
			out = append(out, conditions.Pair{it.Combo[0], it.Combo[1]})
		}
	}
	return out, nil
}

// ValidCombos implements conditions.Source.
func (c *Client) ValidCombos(ctx context.Context, maxGen int) ([]conditions.Pair, error) {
	return c.FetchValidityRelation(ctx, maxGen)
}

// FetchGenerationMetadata returns the default ceiling and generation years.
func (c *Client) FetchGenerationMetadata(ctx context.Context) (dex.Metadata, error) {
	var out dex.Metadata
	if err := c.get(ctx, "/api/latest_metadata", nil, &out); err != nil {
		return dex.Metadata{Defaults: dex.Defaults{MaxGen: 1}}, err
	}
	if out.Defaults.MaxGen < 1 {
		out.Defaults.MaxGen = 1
	}
	return out, nil
}

// ValidateGuess asks whether entity id satisfies [row, col].
func (c *Client) ValidateGuess(ctx context.Context, id int, conds [2]string) (bool, error) {
	q := url.Values{}
	q.Set("identifier", strconv.Itoa(id))
	q.Set("conditions", conds[0]+","+conds[1])
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.get(ctx, "/api/test", q, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// Matches searches entity names up to maxGen.
func (c *Client) Matches(ctx context.Context, guess string, maxGen int) ([]dex.Match, error) {
	q := url.Values{}
	q.Set("guess", guess)
	if maxGen > 0 {
		q.Set("max_gen", strconv.Itoa(maxGen))
	}
	var items []struct {
		Pokemon *dex.Match `json:"pokemon"`
	}
	if err := c.get(ctx, "/api/matches", q, &items); err != nil {
		return nil, err
	}
	var out []dex.Match
	for _, it := range items {
		if it.Pokemon != nil {
			out = append(out, *it.Pokemon)
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	u := c.root + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

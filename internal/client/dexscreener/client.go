package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"smartflow/internal/flow"
)

const (
	DefaultHost      = "https://api.dexscreener.com"
	DefaultBatchSize = 30
	providerName     = "dexscreener"
	tokensPath       = "/latest/dex/tokens/"
	maxErrorBody     = 512
)

type Client struct {
	host        string
	chain       string
	concurrency int
	httpClient  *http.Client
}

// NewClient builds a client. Pairs whose chainId differs from chain are dropped;
// an empty chain keeps every pair. concurrency caps in-flight chunk requests.
func NewClient(httpClient *http.Client, host, chain string, concurrency int) *Client {
	if host == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		host:        strings.TrimRight(host, "/"),
		chain:       chain,
		concurrency: concurrency,
		httpClient:  httpClient,
	}
}

// FetchMarketData looks up pairs for addresses in chunks of batchSize. A failed
// chunk is reported in Failures and does not affect the other chunks. Records
// keep chunk order, then the provider's pair order within each chunk.
func (c *Client) FetchMarketData(ctx context.Context, addresses []string, batchSize int) MarketResult {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	chunks := Chunk(dedupe(addresses), batchSize)
	result := MarketResult{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return result
	}

	type slot struct {
		records  []flow.MarketRecord
		rejected []flow.Rejection
		err      error
	}
	slots := make([]slot, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			pairs, err := c.fetchChunk(gctx, chunk)
			if err != nil {
				slots[i].err = err
				return nil
			}
			slots[i].records, slots[i].rejected = c.filter(pairs, chunk)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range slots {
		if s.err != nil {
			result.Failures = append(result.Failures, ChunkFailure{Addresses: chunks[i], Err: s.err})
			continue
		}
		result.Records = append(result.Records, s.records...)
		result.Rejected = append(result.Rejected, s.rejected...)
	}
	return result
}

func (c *Client) fetchChunk(ctx context.Context, chunk []string) ([]json.RawMessage, error) {
	escaped := make([]string, len(chunk))
	for i, addr := range chunk {
		escaped[i] = url.PathEscape(addr)
	}
	body, err := c.doRequest(ctx, tokensPath+strings.Join(escaped, ","))
	if err != nil {
		return nil, err
	}
	var resp tokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &flow.UpstreamError{Provider: providerName, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Pairs, nil
}

// filter decodes each pair on its own so one malformed pair is rejected
// without losing the rest of the chunk.
func (c *Client) filter(pairs []json.RawMessage, chunk []string) ([]flow.MarketRecord, []flow.Rejection) {
	requested := make(map[string]struct{}, len(chunk))
	for _, addr := range chunk {
		requested[addr] = struct{}{}
	}
	records := make([]flow.MarketRecord, 0, len(pairs))
	var rejected []flow.Rejection
	for _, raw := range pairs {
		var key pairKey
		if err := json.Unmarshal(raw, &key); err != nil {
			rejected = append(rejected, flow.Rejection{Provider: providerName, Reason: err.Error()})
			continue
		}
		if c.chain != "" && !strings.EqualFold(key.ChainID, c.chain) {
			continue
		}
		addr := strings.TrimSpace(key.BaseToken.Address)
		if _, ok := requested[addr]; !ok {
			continue
		}
		var p Pair
		if err := json.Unmarshal(raw, &p); err != nil {
			rejected = append(rejected, flow.Rejection{Provider: providerName, Address: addr, Reason: err.Error()})
			continue
		}
		rec, _, err := flow.SanitizeMarket(p.Record())
		if err != nil {
			rejected = append(rejected, flow.Rejection{Provider: providerName, Address: addr, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &flow.UpstreamError{Provider: providerName, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &flow.UpstreamError{Provider: providerName, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &flow.UpstreamError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// Chunk splits items into consecutive groups of at most size.
func Chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, raw := range items {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

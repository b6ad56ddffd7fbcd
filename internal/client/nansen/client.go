package nansen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"smartflow/internal/flow"
)

const (
	DefaultHost  = "https://api.nansen.ai"
	providerName = "nansen"
	netflowPath  = "/api/v1/smart-money/netflow"
	maxErrorBody = 512
)

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client, host, apiKey string) *Client {
	if host == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// FetchNetflow returns the provider's token list in the order it was sorted by
// req.OrderField. Entries that fail to decode or validate are returned as
// rejections instead of failing the call.
func (c *Client) FetchNetflow(ctx context.Context, req NetflowRequest) ([]flow.NetflowRecord, []flow.Rejection, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, nil, &flow.UpstreamError{Provider: providerName, Err: errors.New("api key is not configured")}
	}
	body := netflowBody{
		Chains:     req.Chains,
		Pagination: pagination{Page: req.Page, PerPage: req.PerPage},
		OrderBy:    []orderBy{{Direction: req.Direction, Field: req.OrderField}},
	}
	if len(body.Chains) == 0 {
		body.Chains = []string{flow.ChainSolana}
	}
	if body.Pagination.Page <= 0 {
		body.Pagination.Page = 1
	}
	if body.Pagination.PerPage <= 0 {
		body.Pagination.PerPage = 50
	}
	if body.OrderBy[0].Field == "" {
		body.OrderBy[0].Field = "net_flow_24h_usd"
	}
	if body.OrderBy[0].Direction == "" {
		body.OrderBy[0].Direction = "DESC"
	}

	raw, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, nil, err
	}

	var resp netflowResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, &flow.UpstreamError{Provider: providerName, Err: fmt.Errorf("decode response: %w", err)}
	}

	records := make([]flow.NetflowRecord, 0, len(resp.Data))
	var rejected []flow.Rejection
	for _, item := range resp.Data {
		var tok Token
		if err := json.Unmarshal(item, &tok); err != nil {
			rejected = append(rejected, flow.Rejection{Provider: providerName, Address: peekAddress(item), Reason: err.Error()})
			continue
		}
		rec, _, err := flow.SanitizeNetflow(tok.Record(body.Chains[0]))
		if err != nil {
			rejected = append(rejected, flow.Rejection{Provider: providerName, Address: tok.TokenAddress, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

func (c *Client) doRequest(ctx context.Context, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+netflowPath, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

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
		return nil, &flow.UpstreamError{Provider: providerName, Status: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}
	return body, nil
}

func peekAddress(raw json.RawMessage) string {
	var probe struct {
		TokenAddress string `json:"token_address"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.TokenAddress
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

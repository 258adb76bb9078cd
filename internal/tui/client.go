// Package tui provides the terminal dashboard, a read-only viewer over the
// HTTP API.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agenttrace/agenttrace/pkg/models"
)

// Client is a thin HTTP API client for the dashboard.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an API client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(path string, params url.Values, target any) error {
	u := c.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	resp, err := c.httpClient.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// Health probes the collector's health endpoint.
func (c *Client) Health() error {
	var h struct {
		Status string `json:"status"`
	}
	return c.get("/health", nil, &h)
}

// Summary fetches the default-window metrics summary.
func (c *Client) Summary() (models.MetricsSummary, error) {
	var resp struct {
		Data struct {
			Summary models.MetricsSummary `json:"summary"`
		} `json:"data"`
	}
	err := c.get("/api/v1/metrics/summary", nil, &resp)
	return resp.Data.Summary, err
}

// Traces fetches the most recent trace summaries.
func (c *Client) Traces(limit int) ([]models.TraceSummary, error) {
	var resp struct {
		Data struct {
			Traces []models.TraceSummary `json:"traces"`
		} `json:"data"`
	}
	err := c.get("/api/v1/traces", url.Values{"limit": {strconv.Itoa(limit)}}, &resp)
	return resp.Data.Traces, err
}

package youtilitics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// APIError is returned for any non-200 response
type APIError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error fetching data from %s: %d - %s", e.Path, e.StatusCode, e.Body)
}

// Client fetches accounts, service types and readings from the Youtilitics API.
// The supplied HTTP client is expected to authenticate requests.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *ReadingCache
	logger  *zap.Logger
}

// NewClient creates a new API client
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		cache:   NewReadingCache(),
		logger:  logger,
	}
}

// FetchAccounts fetches all accounts with their utilities and services
func (c *Client) FetchAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, "services", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// FetchServiceTypes fetches the category to type code mapping
func (c *Client) FetchServiceTypes(ctx context.Context) (ServiceType, error) {
	var types ServiceType
	if err := c.get(ctx, "utilities/services", &types); err != nil {
		return ServiceType{}, err
	}
	return types, nil
}

// FetchReadings fetches readings for one service. An empty since fetches the
// full history. The result replaces the cached batch for the service.
func (c *Client) FetchReadings(ctx context.Context, serviceID, since string) ([]Reading, error) {
	c.logger.Info("loading readings",
		zap.String("service_id", serviceID),
		zap.String("since", since),
	)

	path := "services/" + url.PathEscape(serviceID)
	if since != "" {
		path += "?" + url.Values{"last": {since}}.Encode()
	}

	var readings []Reading
	if err := c.get(ctx, path, &readings); err != nil {
		return nil, err
	}

	c.cache.Put(serviceID, readings)
	c.logger.Debug("readings loaded",
		zap.String("service_id", serviceID),
		zap.Int("count", len(readings)),
	)
	return readings, nil
}

// CachedReadings returns the last fetched batch for a service, empty if never fetched
func (c *Client) CachedReadings(serviceID string) []Reading {
	return c.cache.Get(serviceID)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Path: path, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"

	"github.com/pdiddy/ace/pkg/types"
)

// TransientStatuses are the responses worth retrying against publisher and
// E-utilities servers.
var TransientStatuses = []int{
	http.StatusBadRequest,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Fetcher downloads pages with a browser User-Agent and retries transient
// failures. The zero value is not usable; call NewFetcher.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	Policy    Policy
}

// NewFetcher builds a Fetcher from cfg, picking one User-Agent from the
// configured pool.
func NewFetcher(cfg types.HTTPConfig, maxRetries int) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: cfg.Timeout},
		UserAgent: PickUserAgent(cfg.UserAgents),
		Policy: Policy{
			MaxRetries: maxRetries,
			BaseDelay:  RetryBaseDelay,
			RetryOn:    TransientStatuses,
		},
	}
}

// PickUserAgent returns a random entry of agents, falling back to
// types.DefaultUserAgents when agents is empty.
func PickUserAgent(agents []string) string {
	if len(agents) == 0 {
		agents = types.DefaultUserAgents
	}
	return agents[rand.IntN(len(agents))]
}

// Get fetches url and returns the body. Any final status other than 200 is
// returned as a *StatusError.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	body, _, err := f.Fetch(ctx, url)
	return body, err
}

// Fetch is Get that also returns the URL the response came from after
// redirects.
func (f *Fetcher) Fetch(ctx context.Context, url string) (body []byte, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Policy.Do(ctx, f.Client, req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	finalURL = url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, finalURL, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, finalURL, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, finalURL, nil
}

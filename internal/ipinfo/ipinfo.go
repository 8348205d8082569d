// Package ipinfo resolves the caller's public IP address on a best-effort
// basis.
package ipinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// FallbackIP stands in for the address when the lookup fails.
const FallbackIP = "0.0.0.0"

// DefaultURL is the public lookup endpoint.
const DefaultURL = "https://api.ipify.org?format=json"

// Result of a lookup. When Err is non-nil, IP is FallbackIP.
type Result struct {
	IP  string
	Err error
}

// Resolver looks up the public address with one HTTP GET.
type Resolver struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewResolver(url string, httpClient *http.Client, logger *slog.Logger) *Resolver {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{url: url, httpClient: httpClient, logger: logger}
}

// Resolve never fails; a lookup error is logged and reported in Result.Err
// with IP set to FallbackIP.
func (r *Resolver) Resolve(ctx context.Context) Result {
	ip, err := r.lookup(ctx)
	if err != nil {
		r.logger.Warn("ip lookup failed", "error", err)
		return Result{IP: FallbackIP, Err: err}
	}
	return Result{IP: ip}
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ip lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ip lookup: decode: %w", err)
	}
	if out.IP == "" {
		return "", errors.New("ip lookup: empty ip")
	}
	return out.IP, nil
}

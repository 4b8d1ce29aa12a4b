package wan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/goccy/go-json"

	"ipinfo-probe/collectors"
)

const (
	DefaultURL     = "https://api4.ipify.org"
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

var (
	ErrBadStatus     = errors.New("unexpected http status")
	ErrMalformedBody = errors.New("response is not an ipv4 address")
)

type Resolver struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewResolver(url string, timeout time.Duration) *Resolver {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{url: url, timeout: timeout, client: newIPv4Client(timeout)}
}

// Lookup makes a single request and returns the address the service saw.
// Both plain-text bodies and {"ip": "..."} documents are accepted.
func (r *Resolver) Lookup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return parseBody(body)
}

type ipResponse struct {
	IP string `json:"ip"`
}

func parseBody(body []byte) (string, error) {
	raw := bytes.TrimSpace(body)
	if len(raw) > 0 && raw[0] == '{' {
		var parsed ipResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		raw = []byte(parsed.IP)
	}

	addr, err := netip.ParseAddr(string(raw))
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%w: %q", ErrMalformedBody, truncate(raw, 64))
	}
	return addr.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type Collector struct {
	resolver *Resolver
}

func NewCollector(r *Resolver) *Collector { return &Collector{resolver: r} }

func (c *Collector) Name() string { return "wan" }

func (c *Collector) Collect(ctx context.Context, rc collectors.RunContext) (collectors.Findings, error) {
	started := time.Now()
	ip, err := c.resolver.Lookup(ctx)
	rc.Log.Debug().Str("url", c.resolver.url).Dur("elapsed", time.Since(started)).Msg("wan lookup finished")
	if err != nil {
		return collectors.Findings{}, fmt.Errorf("wan lookup %s: %w", c.resolver.url, err)
	}
	return collectors.Findings{WANIPv4: ip}, nil
}

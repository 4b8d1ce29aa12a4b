package wan

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// newIPv4Client dials tcp4 only so the echo service sees the IPv4 path even
// on dual-stack hosts.
func newIPv4Client(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 15 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: timeout,
		DisableKeepAlives:   true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

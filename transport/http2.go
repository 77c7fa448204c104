// Package transport provides the HTTP client used to reach the time-tracking API.
// HTTP/2 is negotiated via ALPN; plain HTTP/1.1 stays available as fallback.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
)

// DefaultTimeout bounds a single request (connect + headers + body).
const DefaultTimeout = 10 * time.Second

// Options configures BuildHTTP2Client.
type Options struct {
	Timeout time.Duration // per-request timeout, DefaultTimeout if zero
	CAPath  string        // optional PEM bundle replacing the system roots
}

// BuildHTTP2Client creates a fresh HTTP client with its own connection pool.
// Every polling session and every connectivity probe gets its own instance,
// so no credential or connection state is shared between them.
func BuildHTTP2Client(opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if opts.CAPath != "" {
		caCert, err := os.ReadFile(opts.CAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	t1 := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}

	// Upgrade the transport to HTTP/2 (h2 over TLS, h1 fallback otherwise)
	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
	}
	t2.ReadIdleTimeout = 30 * time.Second
	t2.PingTimeout = timeout

	return &http.Client{
		Transport: t1,
		Timeout:   timeout,
	}, nil
}

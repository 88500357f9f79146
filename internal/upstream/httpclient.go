package upstream

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient creates an HTTP client with optional TLS configuration.
// Set skipTLSVerify to true only for sandbox upstreams with self-signed
// certificates.
func NewHTTPClient(timeout time.Duration, skipTLSVerify bool) *http.Client {
	transport := &http.Transport{}

	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// DefaultHTTPClient returns a standard HTTP client with 30s timeout.
func DefaultHTTPClient() *http.Client {
	return NewHTTPClient(30*time.Second, false)
}

// Package httpclient configures the HTTP client used to call the listings provider.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates a new outbound http client. Every request carries
// header; a non-positive timeout falls back to 30s.
func NewOutbound(timeout time.Duration, header http.Header) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	var rt http.RoundTripper = transport
	if len(header) > 0 {
		rt = NewRoundTripperWithHeaders(transport, header)
	}
	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
	}
}

type RoundTripperWithHeaders struct {
	r      http.RoundTripper
	header http.Header
}

func NewRoundTripperWithHeaders(r http.RoundTripper, header http.Header) *RoundTripperWithHeaders {
	if r == nil {
		r = http.DefaultTransport
	}
	return &RoundTripperWithHeaders{
		r:      r,
		header: header.Clone(),
	}
}

// RoundTrip sets the configured headers on a clone of r; the caller's request
// is left untouched.
func (rt *RoundTripperWithHeaders) RoundTrip(r *http.Request) (*http.Response, error) {
	out := r.Clone(r.Context())
	for k, vs := range rt.header {
		out.Header.Del(k)
		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}
	return rt.r.RoundTrip(out)
}

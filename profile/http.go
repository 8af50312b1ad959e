package profile

import (
	"net"
	"net/http"
	"time"
)

// HttpClient is satisfied by *http.Client and by test doubles.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the client used for the profile API. Per-call
// deadlines come from the request context; the client timeout is only a
// backstop for calls made without one.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

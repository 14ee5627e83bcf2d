package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"aictl/internal/logging"
)

// New returns an http.Client configured for outbound requests.
//
// Proxies from HTTP(S)_PROXY/ALL_PROXY are honored for remote hosts but
// skipped for loopback targets, so local services keep working when a
// corporate proxy is configured.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(logger),
	}
}

// Transport returns an http.Transport clone with a proxy policy suitable
// for outbound calls.
func Transport(logger logging.Logger) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: proxyFunc(logger)}
	}

	transport := base.Clone()
	transport.Proxy = proxyFunc(logger)
	return transport
}

func proxyFunc(logger logging.Logger) func(*http.Request) (*url.URL, error) {
	logger = logging.OrNop(logger)

	return func(req *http.Request) (*url.URL, error) {
		if req != nil && req.URL != nil && isLoopbackHost(req.URL.Hostname()) {
			return nil, nil
		}
		proxyURL, err := http.ProxyFromEnvironment(req)
		if err != nil {
			return nil, err
		}
		if proxyURL != nil {
			logger.Debug("Using proxy %s for %s", proxyURL.Host, req.URL.Host)
		}
		return proxyURL, nil
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

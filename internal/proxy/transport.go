package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	netproxy "golang.org/x/net/proxy"
	"h12.io/socks"
)

// Transport builds the round tripper for the descriptor. Direct descriptors
// return nil so callers fall back to their default transport.
func (d Descriptor) Transport() (http.RoundTripper, error) {
	if d.IsDirect() {
		return nil, nil
	}
	base := baseTransport()

	switch d.Scheme {
	case SchemeHTTP, SchemeHTTPS:
		base.Proxy = http.ProxyURL(d.URL())
	case SchemeSOCKS5:
		dialer, err := netproxy.FromURL(d.URL(), netproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("build socks5 dialer: %w", err)
		}
		base.Proxy = nil
		if cd, ok := dialer.(netproxy.ContextDialer); ok {
			base.DialContext = cd.DialContext
		} else {
			base.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case SchemeSOCKS4:
		dial := socks.Dial(d.URL().String() + "?timeout=30s")
		base.Proxy = nil
		base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return dial(network, addr)
		}
	default:
		return nil, fmt.Errorf("no transport for scheme %q", d.Scheme)
	}
	return base, nil
}

func baseTransport() *http.Transport {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return t.Clone()
	}
	return &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"RewardPilot/pkg/logger"
)

// Router maps identity indices onto transports over a read-only proxy list.
type Router struct {
	proxies []string
	logger  *slog.Logger
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithLogger overrides the router logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter copies proxies so later mutation by the caller has no effect.
func NewRouter(proxies []string, opts ...RouterOption) *Router {
	r := &Router{
		proxies: append([]string(nil), proxies...),
		logger:  logger.Named("proxy"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Len returns the number of configured proxies.
func (r *Router) Len() int {
	return len(r.proxies)
}

// TransportFor returns the transport for the identity at index together with
// the descriptor used. A nil transport means a direct connection; malformed
// entries are logged and degrade to direct instead of aborting the run.
func (r *Router) TransportFor(index int) (http.RoundTripper, Descriptor) {
	d, err := Select(index, r.proxies)
	if err != nil {
		r.logger.Warn("proxy entry rejected, using direct connection",
			slog.Int("index", index), slog.Any("error", err))
		return nil, Direct
	}
	if d.IsDirect() {
		return nil, d
	}
	rt, err := d.Transport()
	if err != nil {
		r.logger.Warn("proxy transport unavailable, using direct connection",
			slog.Int("index", index), slog.String("proxy", d.Redacted()), slog.Any("error", err))
		return nil, Direct
	}
	return rt, d
}

// LoadList reads a newline-delimited proxy list. Blank lines and lines
// starting with '#' are skipped. A missing file is an empty list.
func LoadList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open proxy list %s: %w", path, err)
	}
	defer file.Close()

	var proxies []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list %s: %w", path, err)
	}
	return proxies, nil
}

// Package proxy parses proxy strings into tagged descriptors and maps identity
// indices onto network transports. Selection is a pure function of the index
// and the list; the list is never mutated after it is loaded.
package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	xerrors "RewardPilot/internal/errors"
)

// Scheme tags the kind of transport a descriptor produces.
type Scheme string

const (
	SchemeDirect Scheme = "direct"
	SchemeHTTP   Scheme = "http"
	SchemeHTTPS  Scheme = "https"
	SchemeSOCKS4 Scheme = "socks4"
	SchemeSOCKS5 Scheme = "socks5"
)

// Descriptor is an immutable, parsed proxy entry.
type Descriptor struct {
	Scheme   Scheme
	Host     string
	Port     int
	Username string
	Password string
	Raw      string
}

// Direct is the descriptor used when no proxy applies.
var Direct = Descriptor{Scheme: SchemeDirect}

// IsDirect reports whether traffic goes out without a proxy.
func (d Descriptor) IsDirect() bool {
	return d.Scheme == SchemeDirect || d.Scheme == ""
}

// Address returns host:port.
func (d Descriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// URL rebuilds the proxy URL including credentials.
func (d Descriptor) URL() *url.URL {
	u := &url.URL{Scheme: string(d.Scheme), Host: d.Address()}
	switch {
	case d.Username != "" && d.Password != "":
		u.User = url.UserPassword(d.Username, d.Password)
	case d.Username != "":
		u.User = url.User(d.Username)
	}
	return u
}

// Redacted renders the descriptor for logs with the password masked.
func (d Descriptor) Redacted() string {
	if d.IsDirect() {
		return string(SchemeDirect)
	}
	return d.URL().Redacted()
}

func (d Descriptor) String() string {
	return d.Redacted()
}

// Parse turns one proxy list entry into a Descriptor. Entries with an
// http://, https://, socks4:// or socks5:// prefix keep their scheme; a bare
// [user:pass@]host:port entry is treated as an http proxy. Anything else is a
// PROXY_PARSE_ERROR.
func Parse(raw string) (Descriptor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Descriptor{}, parseError(raw, "empty entry")
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		candidate = string(SchemeHTTP) + "://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return Descriptor{}, parseError(raw, err.Error())
	}

	scheme := Scheme(strings.ToLower(u.Scheme))
	switch scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS4, SchemeSOCKS5:
	default:
		return Descriptor{}, parseError(raw, fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return Descriptor{}, parseError(raw, "missing host")
	}
	portText := u.Port()
	if portText == "" {
		return Descriptor{}, parseError(raw, "missing port")
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return Descriptor{}, parseError(raw, fmt.Sprintf("invalid port %q", portText))
	}
	if u.Path != "" && u.Path != "/" {
		return Descriptor{}, parseError(raw, "unexpected path")
	}

	d := Descriptor{Scheme: scheme, Host: host, Port: port, Raw: trimmed}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	return d, nil
}

// Select picks proxies[index mod len(proxies)] and parses it. An empty list
// yields Direct.
func Select(index int, proxies []string) (Descriptor, error) {
	if len(proxies) == 0 {
		return Direct, nil
	}
	if index < 0 {
		return Descriptor{}, xerrors.New(xerrors.CodeValidation, fmt.Sprintf("negative identity index %d", index))
	}
	return Parse(proxies[index%len(proxies)])
}

func parseError(raw, reason string) error {
	return xerrors.New(xerrors.CodeProxyParse,
		fmt.Sprintf("invalid proxy entry: %s", reason),
		xerrors.WithMetadata("entry", redactRaw(raw)))
}

// redactRaw hides anything that looks like a password in an unparsable entry.
func redactRaw(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	prefix := ""
	rest := raw[:at]
	if idx := strings.Index(rest, "://"); idx >= 0 {
		prefix, rest = rest[:idx+3], rest[idx+3:]
	}
	if colon := strings.Index(rest, ":"); colon >= 0 {
		rest = rest[:colon] + ":xxxxx"
	}
	return prefix + rest + raw[at:]
}

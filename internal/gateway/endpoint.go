package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is a parsed gateway URL.
type Endpoint struct {
	Secure bool
	Host   string
	Port   int
	Path   string
}

// URL renders the endpoint as a websocket URL, bracketing IPv6 hosts.
func (e Endpoint) URL() string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, e.Port, e.Path)
}

// ParseEndpoint parses a gateway URL. Accepted forms: ws:// and wss://
// (http/https are treated as aliases), a bracketed IPv6 literal host with an
// optional :port suffix, and a bare host:port shorthand when exactly one
// colon appears outside brackets. Default ports are 80 and 443, default
// path is "/".
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("gateway: endpoint URL is empty")
	}

	var ep Endpoint
	rest := raw
	switch {
	case strings.HasPrefix(raw, "ws://"):
		rest = raw[len("ws://"):]
	case strings.HasPrefix(raw, "wss://"):
		ep.Secure = true
		rest = raw[len("wss://"):]
	case strings.HasPrefix(raw, "http://"):
		rest = raw[len("http://"):]
	case strings.HasPrefix(raw, "https://"):
		ep.Secure = true
		rest = raw[len("https://"):]
	default:
		// Scheme-less shorthand: host:port with exactly one colon outside
		// brackets.
		if countColonsOutsideBrackets(raw) != 1 && !strings.HasPrefix(raw, "[") {
			return Endpoint{}, fmt.Errorf("gateway: unsupported endpoint %q", raw)
		}
	}

	hostport := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostport = rest[:i]
		ep.Path = rest[i:]
	}
	if ep.Path == "" {
		ep.Path = "/"
	}

	host, port, err := splitHostPort(hostport)
	if err != nil {
		return Endpoint{}, err
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("gateway: endpoint %q has no host", raw)
	}

	ep.Host = host
	ep.Port = port
	if ep.Port == 0 {
		if ep.Secure {
			ep.Port = 443
		} else {
			ep.Port = 80
		}
	}
	return ep, nil
}

// splitHostPort handles "host", "host:port", "[v6]" and "[v6]:port".
// Returns port 0 when absent.
func splitHostPort(hostport string) (string, int, error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("gateway: unterminated IPv6 literal in %q", hostport)
		}
		host := hostport[1:end]
		rest := hostport[end+1:]
		if rest == "" {
			return host, 0, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, fmt.Errorf("gateway: invalid port suffix in %q", hostport)
		}
		port, err := parsePort(rest[1:])
		if err != nil {
			return "", 0, err
		}
		return host, port, nil
	}

	switch strings.Count(hostport, ":") {
	case 0:
		return hostport, 0, nil
	case 1:
		i := strings.IndexByte(hostport, ':')
		port, err := parsePort(hostport[i+1:])
		if err != nil {
			return "", 0, err
		}
		return hostport[:i], port, nil
	default:
		// A bare IPv6 literal without brackets is ambiguous.
		return "", 0, fmt.Errorf("gateway: ambiguous host %q, bracket IPv6 literals", hostport)
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("gateway: invalid port %q", s)
	}
	return port, nil
}

func countColonsOutsideBrackets(s string) int {
	depth := 0
	count := 0
	for _, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				count++
			}
		}
	}
	return count
}

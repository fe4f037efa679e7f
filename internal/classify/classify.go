// Package classify decides, per outgoing request, which generation and which
// resolution strategy apply.
package classify

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/leonardcser/swcache/internal/generation"
	"github.com/leonardcser/swcache/internal/strategy"
)

// Decision is the classification of a single request. Passthrough decisions
// carry no generation.
type Decision struct {
	Kind     generation.Kind
	Strategy strategy.Mode
}

// Passthrough reports whether the request bypasses the cache entirely.
func (d Decision) Passthrough() bool { return d.Strategy == strategy.Passthrough }

// Classifier routes API traffic to the dynamic generation (network-first) and
// everything else to the static generation (cache-first).
type Classifier struct {
	backendHost string
	apiPrefix   string
}

// New builds a Classifier. backendOrigin may be a bare host[:port] or a full
// origin URL; apiPrefix is matched against the request path.
func New(backendOrigin, apiPrefix string) *Classifier {
	return &Classifier{backendHost: hostOf(backendOrigin), apiPrefix: apiPrefix}
}

// Classify is pure: it only inspects the request line.
func (c *Classifier) Classify(req *http.Request) Decision {
	if req == nil || req.URL == nil {
		return Decision{Strategy: strategy.Passthrough}
	}
	if req.Method != http.MethodGet {
		return Decision{Strategy: strategy.Passthrough}
	}
	if s := req.URL.Scheme; s != "" && s != "http" && s != "https" {
		return Decision{Strategy: strategy.Passthrough}
	}
	if c.isBackend(req.URL) {
		return Decision{Kind: generation.Dynamic, Strategy: strategy.NetworkFirst}
	}
	return Decision{Kind: generation.Static, Strategy: strategy.CacheFirst}
}

func (c *Classifier) isBackend(u *url.URL) bool {
	if c.backendHost != "" && strings.EqualFold(u.Host, c.backendHost) {
		return true
	}
	return c.apiPrefix != "" && strings.HasPrefix(u.Path, c.apiPrefix)
}

func hostOf(origin string) string {
	origin = strings.TrimSpace(origin)
	if strings.Contains(origin, "://") {
		if u, err := url.Parse(origin); err == nil {
			return u.Host
		}
	}
	return strings.TrimSuffix(origin, "/")
}

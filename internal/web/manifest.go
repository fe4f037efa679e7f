package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/leonardcser/swcache/internal/cache"
)

const (
	RequestTimeout = 20 * time.Second
	MaxAssetSize   = 10 * 1024 * 1024 // 10MB
)

// discoverSelector matches same-document references worth provisioning.
const discoverSelector = "script[src], img[src], link[rel=stylesheet][href], link[rel=manifest][href], link[rel=icon][href], link[rel=modulepreload][href]"

// Asset is one provisioned shell resource, keyed by its absolute URL.
type Asset struct {
	URL   string
	Entry cache.Entry
}

// Fingerprint is the cache key the asset is stored under.
func (a Asset) Fingerprint() string { return http.MethodGet + " " + a.URL }

// ProvisionError reports the manifest asset that could not be fetched.
type ProvisionError struct {
	Asset string
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %q: %v", e.Asset, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

type LoaderOptions struct {
	// Discover follows same-origin asset references found in HTML documents.
	Discover bool
	Timeout  time.Duration
	Logger   *zap.Logger
}

// ManifestLoader fetches the application shell from a base origin.
type ManifestLoader struct {
	base     *url.URL
	discover bool
	timeout  time.Duration
	log      *zap.Logger
}

func NewManifestLoader(base string, opts LoaderOptions) (*ManifestLoader, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("base url must start with http:// or https://")
	}
	l := &ManifestLoader{base: u, discover: opts.Discover, timeout: opts.Timeout, log: opts.Logger}
	if l.timeout <= 0 {
		l.timeout = RequestTimeout
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l, nil
}

// Resolve turns a manifest path into the absolute URL it is cached under.
func (l *ManifestLoader) Resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return l.base.ResolveReference(ref).String(), nil
}

// Load fetches every manifest entry, plus discovered references when enabled.
// It returns all assets or the first failure; a non-2xx status is a failure.
func (l *ManifestLoader) Load(ctx context.Context, manifest []string) ([]Asset, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	c.Context = ctx
	c.MaxBodySize = MaxAssetSize
	c.SetRequestTimeout(l.timeout)

	var (
		current    string
		assets     []Asset
		seen       = make(map[string]struct{})
		discovered []string
	)
	c.OnResponse(func(r *colly.Response) {
		h := http.Header{}
		if r.Headers != nil {
			h = r.Headers.Clone()
		}
		assets = append(assets, Asset{
			URL: current,
			Entry: cache.Entry{
				Status:   r.StatusCode,
				Header:   h,
				Body:     append([]byte(nil), r.Body...),
				StoredAt: time.Now().UTC(),
			},
		})
	})
	if l.discover {
		c.OnHTML(discoverSelector, func(e *colly.HTMLElement) {
			ref := e.Attr("src")
			if ref == "" {
				ref = e.Attr("href")
			}
			ref = strings.TrimSpace(ref)
			if ref == "" {
				return
			}
			abs := e.Request.AbsoluteURL(ref)
			if abs == "" || !l.sameOrigin(abs) {
				return
			}
			if _, ok := seen[abs]; !ok {
				seen[abs] = struct{}{}
				discovered = append(discovered, abs)
			}
		})
	}

	visit := func(name, target string) error {
		current = target
		if err := c.Visit(target); err != nil {
			return &ProvisionError{Asset: name, Err: err}
		}
		if ctx.Err() != nil {
			return &ProvisionError{Asset: name, Err: ctx.Err()}
		}
		return nil
	}

	for _, p := range manifest {
		target, err := l.Resolve(p)
		if err != nil {
			return nil, &ProvisionError{Asset: p, Err: err}
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		if err := visit(p, target); err != nil {
			return nil, err
		}
	}
	// discovered grows while visiting
	for i := 0; i < len(discovered); i++ {
		if err := visit(discovered[i], discovered[i]); err != nil {
			return nil, err
		}
	}
	l.log.Debug("manifest loaded", zap.Int("assets", len(assets)), zap.Int("discovered", len(discovered)))
	return assets, nil
}

func (l *ManifestLoader) sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, l.base.Host) && u.Scheme == l.base.Scheme
}

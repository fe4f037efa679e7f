// Package proxy exposes the interception layer over HTTP. Application traffic
// is forwarded through the lifecycle host; the /_sw routes drive it.
package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leonardcser/swcache/internal/lifecycle"
	"github.com/leonardcser/swcache/internal/notify"
)

// MaxPushPayload bounds the body accepted by the push route.
const MaxPushPayload = 4 * 1024

type Options struct {
	// Upstream is the origin relative requests are forwarded to.
	Upstream string
	Host     *lifecycle.Host
	Logger   *zap.Logger
	// Registry receives the proxy metrics; nil means a private registry.
	Registry *prometheus.Registry
}

// New builds the gin engine serving the admin routes and forwarding the rest.
func New(opts Options) (*gin.Engine, error) {
	if opts.Host == nil {
		return nil, errors.New("proxy: host is required")
	}
	upstream, err := url.Parse(opts.Upstream)
	if err != nil {
		return nil, err
	}
	if upstream.Scheme != "http" && upstream.Scheme != "https" {
		return nil, errors.New("proxy: upstream must start with http:// or https://")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := newMetrics(reg, opts.Host)

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// Absolute-form requests keep their own origin.
			if !pr.In.URL.IsAbs() {
				pr.SetURL(upstream)
			}
			pr.SetXForwarded()
		},
		Transport: opts.Host,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("forward failed", zap.String("url", r.URL.String()), zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	h := &handler{host: opts.Host, log: log}
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(log), m.middleware())
	router.Use(forwardAbsolute(rp))

	sw := router.Group("/_sw")
	sw.GET("/status", h.status)
	sw.POST("/push", h.push)
	sw.POST("/click", h.click)
	sw.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	router.NoRoute(gin.WrapH(rp))
	return router, nil
}

// forwardAbsolute sends forward-proxy requests past the admin routes, which
// only answer for the proxy itself.
func forwardAbsolute(rp *httputil.ReverseProxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodConnect {
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		if c.Request.URL.IsAbs() {
			rp.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}
		c.Next()
	}
}

type handler struct {
	host *lifecycle.Host
	log  *zap.Logger
}

func (h *handler) status(c *gin.Context) {
	st, err := h.host.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// push treats the raw request body as the push payload; an empty body is a
// push without payload.
func (h *handler) push(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxPushPayload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(payload) > MaxPushPayload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	if len(payload) == 0 {
		payload = nil
	}
	n, err := h.host.Push(c.Request.Context(), payload)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handler) click(c *gin.Context) {
	var n notify.Notification
	if c.Request.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(c.Request.Body, MaxPushPayload)).Decode(&n); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := h.host.Click(c.Request.Context(), n); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNoController), errors.Is(err, lifecycle.ErrNoDispatcher):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

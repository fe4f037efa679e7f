package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"

	"github.com/leonardcser/swcache/internal/cache"
	"github.com/leonardcser/swcache/internal/classify"
	"github.com/leonardcser/swcache/internal/config"
	"github.com/leonardcser/swcache/internal/generation"
	"github.com/leonardcser/swcache/internal/lifecycle"
	"github.com/leonardcser/swcache/internal/logger"
	"github.com/leonardcser/swcache/internal/notify"
	"github.com/leonardcser/swcache/internal/proxy"
	"github.com/leonardcser/swcache/internal/strategy"
	tools "github.com/leonardcser/swcache/internal/tools"
	web "github.com/leonardcser/swcache/internal/web"
)

const daemonBinary = "swcache-cache"

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting swcache")

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		panic(err)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Errorf("Failed to open %s cache store: %v", cfg.Backend, err)
		panic(err)
	}
	defer store.Close()
	logger.Infof("Using %s cache store", cfg.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := lifecycle.NewHost(http.DefaultTransport, logger.Named("host"))
	ctrl, err := newController(cfg, store)
	if err != nil {
		logger.Errorf("Failed to build controller: %v", err)
		panic(err)
	}
	// Claim control right away instead of waiting for existing clients to go away.
	if err := host.Upgrade(ctx, ctrl); err != nil {
		logger.Errorf("Install failed, requests pass through uncached: %v", err)
	} else {
		logger.Infof("Controller %s active", ctrl.Version())
	}

	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard
	router, err := proxy.New(proxy.Options{
		Upstream: cfg.Upstream,
		Host:     host,
		Logger:   logger.Named("proxy"),
	})
	if err != nil {
		logger.Errorf("Failed to build proxy: %v", err)
		panic(err)
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Proxy listening on %s, upstream %s", cfg.Listen, cfg.Upstream)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("proxy error: %v", err)
			stop()
		}
	}()

	go watchReload(ctx, host, store, cfg)

	if cfg.MCP {
		go func() {
			defer stop()
			logger.Infof("Starting MCP server on stdio")
			if err := server.ServeStdio(newMCPServer(host)); err != nil {
				logger.Errorf("mcp server error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("proxy shutdown: %v", err)
	}
	if err := host.Close(shutdownCtx); err != nil {
		logger.Warnf("pending cache writes not flushed: %v", err)
	}
}

// newController builds an uninstalled controller for the generations named in cfg.
func newController(cfg config.Config, store cache.Store) (*lifecycle.Controller, error) {
	reg, err := generation.NewRegistry(cfg.StaticGeneration, cfg.DynamicGeneration)
	if err != nil {
		return nil, err
	}
	loader, err := web.NewManifestLoader(cfg.Upstream, web.LoaderOptions{
		Discover: cfg.Discover,
		Logger:   logger.Named("loader"),
	})
	if err != nil {
		return nil, err
	}
	fallback := strategy.TransportOnly
	if cfg.FallbackOn5xx {
		fallback = strategy.ServerErrors
	}
	notifyLog := logger.Named("notify")
	return lifecycle.New(lifecycle.Config{
		Version:    cfg.StaticGeneration,
		Registry:   reg,
		Manifest:   cfg.Manifest,
		Store:      store,
		Loader:     loader,
		Classifier: classify.New(cfg.BackendOrigin, cfg.APIPrefix),
		Transport:  http.DefaultTransport,
		Fallback:   fallback,
		Dispatcher: notify.NewDispatcher(notify.LogNotifier{Log: notifyLog}, &notify.LogWindows{Log: notifyLog}, notifyLog),
		Logger:     logger.Named("controller"),
	})
}

// watchReload re-reads the environment on SIGHUP and hands control to a new
// controller when the generation names changed. The store is not reopened.
func watchReload(ctx context.Context, host *lifecycle.Host, store cache.Store, cur config.Config) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		next, err := config.Load()
		if err != nil {
			logger.Warnf("Reload ignored: %v", err)
			continue
		}
		if next.StaticGeneration == cur.StaticGeneration && next.DynamicGeneration == cur.DynamicGeneration {
			logger.Infof("Reload: generations unchanged")
			continue
		}
		if next.Backend != cur.Backend {
			logger.Warnf("Reload: backend change to %s needs a restart", next.Backend)
		}
		ctrl, err := newController(next, store)
		if err != nil {
			logger.Errorf("Reload: %v", err)
			continue
		}
		if err := host.Upgrade(ctx, ctrl); err != nil {
			logger.Errorf("Upgrade to %s failed, keeping %s: %v", next.StaticGeneration, cur.StaticGeneration, err)
			continue
		}
		logger.Infof("Upgraded to %s", next.StaticGeneration)
		cur = next
	}
}

func newMCPServer(host *lifecycle.Host) *server.MCPServer {
	s := server.NewMCPServer(
		"swcache",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolFetch := mcp.NewTool("cache-fetch",
		mcp.WithDescription(multiline(
			"Fetches a URL through the offline cache layer and returns the parsed content",
			"\nFunctionality:",
			"- Application shell URLs are answered cache-first from the static generation",
			"- API URLs are fetched network-first and fall back to the dynamic generation when the network fails",
			"- HTML is converted to Markdown; JSON and other text is returned as is",
			"\nUsage notes:",
			"- The URL must be a fully-formed valid URL",
			"- Fetching through this tool writes to the cache exactly like proxied traffic",
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch")),
	)
	s.AddTool(toolFetch, tools.CacheFetchHandler(host))
	logger.Infof("Registered cache-fetch tool")

	toolGenerations := mcp.NewTool("cache-generations",
		mcp.WithDescription(multiline(
			"Lists the cache generations held in the store and the counters of the active controller",
			"- Generations in use are marked [current]",
		)),
	)
	s.AddTool(toolGenerations, tools.CacheGenerationsHandler(host))
	logger.Infof("Registered cache-generations tool")

	toolPush := mcp.NewTool("cache-push",
		mcp.WithDescription(multiline(
			"Delivers a push message and returns the notification that was shown",
			"- Without a body the default notification text is used",
		)),
		mcp.WithString("body", mcp.Description("The push payload text")),
	)
	s.AddTool(toolPush, tools.CachePushHandler(host))
	logger.Infof("Registered cache-push tool")
	return s
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func openStore(cfg config.Config) (cache.Store, error) {
	codec, err := cache.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "bolt":
		s, err := cache.Open(cfg.DBPath, cache.Options{Codec: codec})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		s, err := cache.NewRedisStore(cache.RedisOptions{Client: rdb, Codec: codec, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return s, nil
	default:
		return connectDaemon(cfg.Socket)
	}
}

// connectDaemon connects to the cache daemon, starting it if needed.
func connectDaemon(sock string) (cache.Store, error) {
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	client, err := connectCache(sock)
	if err == nil {
		logger.Infof("Successfully connected to cache daemon")
		return client, nil
	}
	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if startErr := startCacheDaemon(); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
	} else {
		logger.Infof("Cache daemon started successfully")
	}
	// wait for socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, err2 := connectCache(sock)
		if err2 == nil {
			logger.Infof("Successfully connected to cache daemon")
			return c, nil
		}
		err = err2
		time.Sleep(200 * time.Millisecond)
	}
	return nil, err
}

func connectCache(sock string) (*cache.Client, error) {
	// quick probe
	conn, err := net.DialTimeout("unix", sock, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	c := cache.NewClient(sock)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func startCacheDaemon() error {
	// 1) Try cache binary next to this server executable (works with absolute invocation)
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), daemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return spawn(sibling)
		}
	}

	// 2) Try PATH binary
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return spawn(path)
	}

	// 3) Try local binary in current working directory (best-effort)
	if _, err := os.Stat("./" + daemonBinary); err == nil {
		return spawn("./" + daemonBinary)
	}

	return exec.ErrNotFound
}

func spawn(path string) error {
	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd.Start()
}

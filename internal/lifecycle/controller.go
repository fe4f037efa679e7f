// Package lifecycle drives the cache layer through provisioning, generation
// cutover and request interception.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/leonardcser/swcache/internal/cache"
	"github.com/leonardcser/swcache/internal/classify"
	"github.com/leonardcser/swcache/internal/generation"
	"github.com/leonardcser/swcache/internal/notify"
	"github.com/leonardcser/swcache/internal/strategy"
	"github.com/leonardcser/swcache/internal/web"
)

// Loader fetches the provisioning manifest.
type Loader interface {
	Load(ctx context.Context, manifest []string) ([]web.Asset, error)
}

// Config is everything one controller instance needs. Nothing is read from
// package-level state, so several controllers can coexist.
type Config struct {
	// Version labels the controller in logs.
	Version    string
	Registry   *generation.Registry
	Manifest   []string
	Store      cache.Store
	Loader     Loader
	Classifier *classify.Classifier
	// Transport is the network; nil means http.DefaultTransport.
	Transport  http.RoundTripper
	Fallback   strategy.FallbackPolicy
	Dispatcher *notify.Dispatcher
	Logger     *zap.Logger
}

// Controller is the explicit state machine behind the install, activate,
// fetch and push hooks.
type Controller struct {
	version    string
	registry   *generation.Registry
	manifest   []string
	store      cache.Store
	loader     Loader
	classifier *classify.Classifier
	transport  http.RoundTripper
	exec       *strategy.Executor
	dispatcher *notify.Dispatcher
	log        *zap.Logger

	mu    sync.Mutex // serializes transitions
	state atomic.Int32
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("lifecycle: registry is required")
	case cfg.Store == nil:
		return nil, errors.New("lifecycle: store is required")
	case cfg.Loader == nil:
		return nil, errors.New("lifecycle: loader is required")
	case cfg.Classifier == nil:
		return nil, errors.New("lifecycle: classifier is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Version != "" {
		log = log.With(zap.String("version", cfg.Version))
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	exec, err := strategy.New(strategy.Options{
		Store:     cfg.Store,
		Transport: transport,
		Fallback:  cfg.Fallback,
		Logger:    log.Named("strategy"),
	})
	if err != nil {
		return nil, err
	}
	return &Controller{
		version:    cfg.Version,
		registry:   cfg.Registry,
		manifest:   slices.Clone(cfg.Manifest),
		store:      cfg.Store,
		loader:     cfg.Loader,
		classifier: cfg.Classifier,
		transport:  transport,
		exec:       exec,
		dispatcher: cfg.Dispatcher,
		log:        log,
	}, nil
}

func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) Version() string { return c.version }

func (c *Controller) Registry() *generation.Registry { return c.registry }

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.log.Debug("state changed", zap.Stringer("state", s))
}

func (c *Controller) expect(want State) error {
	if got := c.State(); got != want {
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, want, got)
	}
	return nil
}

// OnInstall provisions the static generation with the manifest. Either every
// asset is stored and the controller becomes Installed, or it returns to
// Uninstalled and a generation it created is removed again.
func (c *Controller) OnInstall(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.expect(Uninstalled); err != nil {
		return err
	}
	c.setState(Provisioning)
	c.log.Info("installing", zap.Strings("manifest", c.manifest))

	if err := c.provision(ctx); err != nil {
		c.setState(Uninstalled)
		c.log.Error("install failed", zap.Error(err))
		return fmt.Errorf("install: %w", err)
	}
	c.setState(Installed)
	c.log.Info("installed")
	return nil
}

func (c *Controller) provision(ctx context.Context) error {
	assets, err := c.loader.Load(ctx, c.manifest)
	if err != nil {
		return err
	}
	static := c.registry.Name(generation.Static)
	names, err := c.store.ListGenerations(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	existed := slices.Contains(names, static)

	if err := c.store.Open(ctx, static); err != nil {
		return fmt.Errorf("open %q: %w", static, err)
	}
	for _, a := range assets {
		if err := c.store.Put(ctx, static, a.Fingerprint(), a.Entry); err != nil {
			if !existed {
				if derr := c.store.DeleteGeneration(context.WithoutCancel(ctx), static); derr != nil {
					c.log.Warn("removing partial generation failed", zap.String("generation", static), zap.Error(derr))
				}
			}
			return &web.ProvisionError{Asset: a.URL, Err: err}
		}
	}
	return nil
}

// OnActivate deletes every generation that is not current, then starts
// intercepting. A failed cutover leaves the controller Installed.
func (c *Controller) OnActivate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.expect(Installed); err != nil {
		return err
	}
	c.setState(Activating)
	c.log.Info("activating")

	deleted, err := c.registry.Cutover(ctx, c.store, c.log)
	if err != nil {
		c.setState(Installed)
		return fmt.Errorf("activate: %w", err)
	}
	c.setState(Active)
	c.log.Info("active", zap.Strings("deleted", deleted), zap.Strings("current", c.registry.Current()))
	return nil
}

// Intercept resolves req through the cache layer. Until the controller is
// Active, and for requests the classifier does not claim, it goes straight
// to the network.
func (c *Controller) Intercept(req *http.Request) (*http.Response, error) {
	mode, gen := c.Route(req)
	if mode == strategy.Passthrough {
		return c.transport.RoundTrip(req)
	}
	return c.exec.Resolve(mode, req, gen)
}

// Route reports the strategy and generation Intercept would use for req.
// Passthrough has no generation.
func (c *Controller) Route(req *http.Request) (strategy.Mode, string) {
	if c.State() != Active {
		return strategy.Passthrough, ""
	}
	d := c.classifier.Classify(req)
	if d.Passthrough() {
		return strategy.Passthrough, ""
	}
	return d.Strategy, c.registry.Name(d.Kind)
}

// RoundTrip makes the controller usable as an http.RoundTripper.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) { return c.Intercept(req) }

// OnPush shows a notification for an inbound push payload, which may be nil.
func (c *Controller) OnPush(ctx context.Context, payload []byte) (notify.Notification, error) {
	if c.dispatcher == nil {
		return notify.Notification{}, ErrNoDispatcher
	}
	return c.dispatcher.Push(ctx, payload)
}

// OnNotificationClick brings the application window to the front.
func (c *Controller) OnNotificationClick(ctx context.Context, n notify.Notification) error {
	if c.dispatcher == nil {
		return ErrNoDispatcher
	}
	return c.dispatcher.Click(ctx, n)
}

// Flush waits for pending cache writes.
func (c *Controller) Flush(ctx context.Context) error { return c.exec.Flush(ctx) }

func (c *Controller) Stats() strategy.Stats { return c.exec.Stats() }

func (c *Controller) Generations(ctx context.Context) ([]string, error) {
	return c.store.ListGenerations(ctx)
}

// retire marks the controller superseded and joins its pending writes.
func (c *Controller) retire(ctx context.Context) error {
	c.mu.Lock()
	c.setState(Redundant)
	c.mu.Unlock()
	return c.Flush(ctx)
}

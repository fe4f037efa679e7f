package lifecycle

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/leonardcser/swcache/internal/notify"
	"github.com/leonardcser/swcache/internal/strategy"
)

// Host owns the controller currently in control of interception and hands
// control to newer versions.
type Host struct {
	current   atomic.Pointer[Controller]
	transport http.RoundTripper
	mu        sync.Mutex // one upgrade at a time
	log       *zap.Logger
}

// NewHost returns a Host with no controller. Until the first upgrade every
// request goes to transport.
func NewHost(transport http.RoundTripper, log *zap.Logger) *Host {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{transport: transport, log: log}
}

func (h *Host) Current() *Controller { return h.current.Load() }

// Upgrade installs and activates next. Only after both succeed does next take
// over; the previous controller keeps control on failure. The previous
// controller is retired and its pending writes are joined.
func (h *Host) Upgrade(ctx context.Context, next *Controller) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := next.OnInstall(ctx); err != nil {
		return err
	}
	if err := next.OnActivate(ctx); err != nil {
		return err
	}
	prev := h.current.Swap(next)
	if prev == nil {
		h.log.Info("controller claimed", zap.String("version", next.Version()))
		return nil
	}
	h.log.Info("controller superseded", zap.String("from", prev.Version()), zap.String("to", next.Version()))
	if err := prev.retire(ctx); err != nil {
		h.log.Warn("retiring previous controller", zap.Error(err))
	}
	return nil
}

func (h *Host) RoundTrip(req *http.Request) (*http.Response, error) {
	if c := h.current.Load(); c != nil {
		return c.Intercept(req)
	}
	return h.transport.RoundTrip(req)
}

// Route reports how RoundTrip would resolve req right now.
func (h *Host) Route(req *http.Request) (strategy.Mode, string) {
	if c := h.current.Load(); c != nil {
		return c.Route(req)
	}
	return strategy.Passthrough, ""
}

// Push delivers a push payload to the controller in control.
func (h *Host) Push(ctx context.Context, payload []byte) (notify.Notification, error) {
	c := h.current.Load()
	if c == nil {
		return notify.Notification{}, ErrNoController
	}
	return c.OnPush(ctx, payload)
}

// Click handles a click on a notification shown by the controller in control.
func (h *Host) Click(ctx context.Context, n notify.Notification) error {
	c := h.current.Load()
	if c == nil {
		return ErrNoController
	}
	return c.OnNotificationClick(ctx, n)
}

// Status describes the controller in control and the stored generations.
type Status struct {
	State       string         `json:"state"`
	Version     string         `json:"version,omitempty"`
	Current     []string       `json:"current,omitempty"`
	Generations []string       `json:"generations"`
	Stats       strategy.Stats `json:"stats"`
}

func (h *Host) Status(ctx context.Context) (Status, error) {
	c := h.current.Load()
	if c == nil {
		return Status{State: Uninstalled.String(), Generations: []string{}}, nil
	}
	names, err := c.Generations(ctx)
	if err != nil {
		return Status{}, err
	}
	if names == nil {
		names = []string{}
	}
	return Status{
		State:       c.State().String(),
		Version:     c.Version(),
		Current:     c.Registry().Current(),
		Generations: names,
		Stats:       c.Stats(),
	}, nil
}

// Close joins the pending writes of the controller in control.
func (h *Host) Close(ctx context.Context) error {
	if c := h.current.Load(); c != nil {
		return c.Flush(ctx)
	}
	return nil
}

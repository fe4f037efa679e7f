// Package notify turns push signals into user-visible notifications and
// handles clicks on them.
package notify

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	Title       = "CrowdSense"
	DefaultBody = "You have a new notification."
	Icon        = "/icon-192.png"
	Badge       = "/icon-192.png"
	// AppURL is opened when a click finds no window to focus.
	AppURL = "/"
)

// Vibrate is the fixed vibration pattern in milliseconds.
var Vibrate = []int{200, 100, 200}

type Data struct {
	// DateOfArrival is in Unix milliseconds.
	DateOfArrival int64 `json:"dateOfArrival"`
	PrimaryKey    int   `json:"primaryKey"`
}

type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Icon    string `json:"icon"`
	Badge   string `json:"badge"`
	Vibrate []int  `json:"vibrate"`
	Data    Data   `json:"data"`
}

// Notifier displays and closes notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, n Notification) error
}

// Window is an application window the host can focus.
type Window interface {
	URL() string
	Focus(ctx context.Context) error
}

// WindowClient enumerates and opens application windows.
type WindowClient interface {
	Windows(ctx context.Context) ([]Window, error)
	Open(ctx context.Context, url string) error
}

// Dispatcher shares no state with the caching path.
type Dispatcher struct {
	notifier Notifier
	windows  WindowClient
	now      func() time.Time
	log      *zap.Logger
}

func NewDispatcher(notifier Notifier, windows WindowClient, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, windows: windows, now: time.Now, log: log}
}

// Decode returns the notification body for a push payload. A missing, blank
// or undecodable payload yields DefaultBody.
func Decode(payload []byte) string {
	if len(payload) == 0 || !utf8.Valid(payload) {
		return DefaultBody
	}
	body := strings.TrimSpace(string(payload))
	if body == "" {
		return DefaultBody
	}
	return body
}

// Build assembles the notification for payload with the fixed visual parameters.
func (d *Dispatcher) Build(payload []byte) Notification {
	return Notification{
		Title:   Title,
		Body:    Decode(payload),
		Icon:    Icon,
		Badge:   Badge,
		Vibrate: append([]int(nil), Vibrate...),
		Data:    Data{DateOfArrival: d.now().UnixMilli(), PrimaryKey: 1},
	}
}

// Push displays a notification for an inbound push signal.
func (d *Dispatcher) Push(ctx context.Context, payload []byte) (Notification, error) {
	n := d.Build(payload)
	if err := d.notifier.Show(ctx, n); err != nil {
		return n, err
	}
	d.log.Info("notification shown", zap.String("body", n.Body))
	return n, nil
}

// Click closes n and focuses the first application window, opening one at
// AppURL when none exists.
func (d *Dispatcher) Click(ctx context.Context, n Notification) error {
	if err := d.notifier.Close(ctx, n); err != nil {
		d.log.Warn("closing notification failed", zap.Error(err))
	}
	windows, err := d.windows.Windows(ctx)
	if err != nil {
		d.log.Warn("listing windows failed", zap.Error(err))
	}
	for _, w := range windows {
		if err := w.Focus(ctx); err == nil {
			d.log.Debug("focused window", zap.String("url", w.URL()))
			return nil
		}
	}
	return d.windows.Open(ctx, AppURL)
}

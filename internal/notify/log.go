package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogNotifier records notifications in the log instead of a desktop shell.
type LogNotifier struct {
	Log *zap.Logger
}

func (l LogNotifier) Show(_ context.Context, n Notification) error {
	l.Log.Info("notify", zap.String("title", n.Title), zap.String("body", n.Body), zap.String("icon", n.Icon))
	return nil
}

func (l LogNotifier) Close(context.Context, Notification) error { return nil }

// LogWindows tracks windows opened through it and logs focus changes.
type LogWindows struct {
	Log *zap.Logger

	mu     sync.Mutex
	opened []string
}

type logWindow struct {
	url string
	log *zap.Logger
}

func (w logWindow) URL() string { return w.url }

func (w logWindow) Focus(context.Context) error {
	w.log.Info("focus window", zap.String("url", w.url))
	return nil
}

func (l *LogWindows) Windows(context.Context) ([]Window, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Window, 0, len(l.opened))
	for _, u := range l.opened {
		out = append(out, logWindow{url: u, log: l.Log})
	}
	return out, nil
}

func (l *LogWindows) Open(_ context.Context, url string) error {
	l.mu.Lock()
	l.opened = append(l.opened, url)
	l.mu.Unlock()
	l.Log.Info("open window", zap.String("url", url))
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	shown  []Notification
	closed int
	err    error
}

func (r *recordingNotifier) Show(_ context.Context, n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.shown = append(r.shown, n)
	return nil
}

func (r *recordingNotifier) Close(context.Context, Notification) error {
	r.closed++
	return nil
}

type fakeWindow struct {
	url      string
	focused  int
	focusErr error
}

func (w *fakeWindow) URL() string { return w.url }
func (w *fakeWindow) Focus(context.Context) error {
	if w.focusErr != nil {
		return w.focusErr
	}
	w.focused++
	return nil
}

type fakeWindows struct {
	windows []Window
	opened  []string
}

func (f *fakeWindows) Windows(context.Context) ([]Window, error) { return f.windows, nil }
func (f *fakeWindows) Open(_ context.Context, url string) error {
	f.opened = append(f.opened, url)
	return nil
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{name: "absent", payload: nil, want: DefaultBody},
		{name: "empty", payload: []byte{}, want: DefaultBody},
		{name: "blank", payload: []byte("  \n"), want: DefaultBody},
		{name: "invalid utf8", payload: []byte{0xff, 0xfe, 0xfd}, want: DefaultBody},
		{name: "text", payload: []byte("Gangnam station is crowded"), want: "Gangnam station is crowded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.payload))
		})
	}
}

func TestPushWithoutPayloadUsesDefaultBody(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, &fakeWindows{}, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	n, err := d.Push(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rec.shown, 1)
	assert.Equal(t, DefaultBody, rec.shown[0].Body)
	assert.Equal(t, Title, n.Title)
	assert.Equal(t, Icon, n.Icon)
	assert.Equal(t, Badge, n.Badge)
	assert.Equal(t, []int{200, 100, 200}, n.Vibrate)
	assert.Equal(t, Data{DateOfArrival: fixed.UnixMilli(), PrimaryKey: 1}, n.Data)

	raw, err := json.Marshal(n.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dateOfArrival":1767323045000,"primaryKey":1}`, string(raw))
}

func TestPushNotifierError(t *testing.T) {
	boom := errors.New("no display")
	d := NewDispatcher(&recordingNotifier{err: boom}, &fakeWindows{}, nil)
	_, err := d.Push(context.Background(), []byte("hi"))
	assert.ErrorIs(t, err, boom)
}

func TestClickFocusesExistingWindow(t *testing.T) {
	rec := &recordingNotifier{}
	broken := &fakeWindow{url: "/a", focusErr: errors.New("gone")}
	w := &fakeWindow{url: "/"}
	windows := &fakeWindows{windows: []Window{broken, w}}
	d := NewDispatcher(rec, windows, nil)

	require.NoError(t, d.Click(context.Background(), d.Build(nil)))
	assert.Equal(t, 1, rec.closed)
	assert.Equal(t, 1, w.focused)
	assert.Empty(t, windows.opened)
}

func TestClickOpensWindowWhenNoneExists(t *testing.T) {
	windows := &fakeWindows{}
	d := NewDispatcher(&recordingNotifier{}, windows, nil)

	require.NoError(t, d.Click(context.Background(), d.Build(nil)))
	assert.Equal(t, []string{AppURL}, windows.opened)
}

func TestLogWindowsRemembersOpened(t *testing.T) {
	lw := &LogWindows{Log: zap.NewNop()}
	d := NewDispatcher(LogNotifier{Log: zap.NewNop()}, lw, nil)

	require.NoError(t, d.Click(context.Background(), d.Build(nil)))
	ws, err := lw.Windows(context.Background())
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, AppURL, ws[0].URL())

	// second click focuses instead of opening again
	require.NoError(t, d.Click(context.Background(), d.Build(nil)))
	ws, _ = lw.Windows(context.Background())
	assert.Len(t, ws, 1)
}

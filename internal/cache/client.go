package cache

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Client implements Store over the cache daemon's Unix socket.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

var _ Store = (*Client)(nil)

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: 500 * time.Millisecond}
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := msgpack.NewEncoder(conn).Encode(&req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, err
	}
	if !resp.OK {
		switch resp.Error {
		case ErrNotFound.Error():
			return resp, ErrNotFound
		case ErrInvalidGeneration.Error():
			return resp, ErrInvalidGeneration
		}
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Open(ctx context.Context, generation string) error {
	_, err := c.roundTrip(ctx, Request{Op: opOpen, Generation: generation})
	return err
}

func (c *Client) Get(ctx context.Context, generation, fingerprint string) (Entry, error) {
	resp, err := c.roundTrip(ctx, Request{Op: opGet, Generation: generation, Key: fingerprint})
	if err != nil {
		return Entry{}, err
	}
	if resp.Entry == nil {
		return Entry{}, ErrNotFound
	}
	return *resp.Entry, nil
}

func (c *Client) Put(ctx context.Context, generation, fingerprint string, entry Entry) error {
	_, err := c.roundTrip(ctx, Request{Op: opPut, Generation: generation, Key: fingerprint, Entry: &entry})
	return err
}

func (c *Client) DeleteGeneration(ctx context.Context, generation string) error {
	_, err := c.roundTrip(ctx, Request{Op: opDrop, Generation: generation})
	return err
}

func (c *Client) ListGenerations(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(ctx, Request{Op: opList})
	if err != nil {
		return nil, err
	}
	return resp.Generations, nil
}

// Close is a no-op; connections are per request.
func (c *Client) Close() error { return nil }

// Ping reports whether the daemon socket accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	d := net.Dialer{Timeout: 200 * time.Millisecond}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return err
	}
	return conn.Close()
}

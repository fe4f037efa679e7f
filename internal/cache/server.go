package cache

import (
	"context"
	"errors"
	"net"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Serve accepts daemon connections on l and answers them from store until l
// is closed.
func Serve(l net.Listener, store Store, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("accept failed", zap.Error(err))
			continue
		}
		go handleConn(conn, store, log)
	}
}

func handleConn(conn net.Conn, store Store, log *zap.Logger) {
	defer conn.Close()
	dec := msgpack.NewDecoder(conn)
	enc := msgpack.NewEncoder(conn)
	ctx := context.Background()
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := dispatch(ctx, store, req)
		if !resp.OK && resp.Error != ErrNotFound.Error() {
			log.Debug("daemon op failed", zap.String("op", req.Op), zap.String("generation", req.Generation), zap.String("error", resp.Error))
		}
		if err := enc.Encode(&resp); err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, store Store, req Request) Response {
	switch req.Op {
	case opOpen:
		return result(store.Open(ctx, req.Generation))
	case opGet:
		e, err := store.Get(ctx, req.Generation, req.Key)
		if err != nil {
			return result(err)
		}
		return Response{OK: true, Entry: &e}
	case opPut:
		if req.Entry == nil {
			return Response{OK: false, Error: "cache: put without entry"}
		}
		return result(store.Put(ctx, req.Generation, req.Key, *req.Entry))
	case opDrop:
		return result(store.DeleteGeneration(ctx, req.Generation))
	case opList:
		names, err := store.ListGenerations(ctx)
		if err != nil {
			return result(err)
		}
		return Response{OK: true, Generations: names}
	default:
		return Response{OK: false, Error: "unknown op"}
	}
}

func result(err error) Response {
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}

package main

import (
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/swcache/internal/cache"
	"github.com/leonardcser/swcache/internal/config"
	"github.com/leonardcser/swcache/internal/logger"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	_ = os.Remove(cfg.Socket)

	l, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		panic(err)
	}
	defer l.Close()
	_ = os.Chmod(cfg.Socket, 0o600)

	codec, err := cache.CodecByName(cfg.Codec)
	if err != nil {
		panic(err)
	}
	store, err := cache.Open(cfg.DBPath, cache.Options{Codec: codec})
	if err != nil {
		panic(err)
	}
	defer store.Close()
	logger.Infof("Cache daemon serving %s on %s", cfg.DBPath, cfg.Socket)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Infof("Cache daemon stopping")
		_ = l.Close()
	}()

	if err := cache.Serve(l, store, logger.Named("cache-server")); err != nil {
		logger.Errorf("serve: %v", err)
	}
}

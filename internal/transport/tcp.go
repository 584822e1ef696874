package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"connectfour/internal/protocol"
	"connectfour/internal/types"

	"go.uber.org/zap"
)

// Handler serves one connection and returns when it is finished.
type Handler func(ctx context.Context, conn types.Conn)

// Listen opens the TCP listener for the game protocol.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is done and runs handle for each on
// its own goroutine, wrapped in a framed channel. It waits for every
// handler to return before returning itself.
func Serve(ctx context.Context, ln net.Listener, log *zap.Logger, idleTimeout, writeTimeout time.Duration, handle Handler) error {
	log = log.Named("tcp")
	log.Info("listening", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("listener closed")
				return nil
			}
			log.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if tcp, ok := nc.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
			_ = tcp.SetKeepAlive(true)
		}

		ch := protocol.NewChannel(nc, idleTimeout, writeTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer ch.Close()
			handle(ctx, ch)
		}()
	}
}

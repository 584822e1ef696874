package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectfour/internal/config"
	"connectfour/internal/db"
	"connectfour/internal/handle/game"
	"connectfour/internal/handle/message"
	"connectfour/internal/transport"
	"connectfour/internal/utils"
	"connectfour/internal/websocket"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := utils.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.ConfigStruct, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	utils.LogNetworkInfo(log)

	var (
		sinks   []db.Sink
		history websocket.HistoryFunc
	)
	if cfg.MySQLEnabled() {
		conn, err := db.OpenMySQL(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.Close(); err != nil {
				log.Warn("closing mysql", zap.Error(err))
			}
		}()
		sink := db.NewMySQLSink(conn)
		if err := sink.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, sink)
		log.Info("mysql connected", zap.String("host", cfg.MySQLHost), zap.String("database", cfg.MySQLDatabase))
	}
	if cfg.MongoEnabled() {
		client, database, err := db.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Warn("closing mongo", zap.Error(err))
			}
		}()
		archive := db.NewMongoArchive(database)
		sinks = append(sinks, archive)
		history = func(ctx context.Context, username string, limit int64) (interface{}, error) {
			return archive.History(ctx, username, limit)
		}
		log.Info("mongo connected", zap.String("database", cfg.MongoDB))
	}

	recorder := db.NewAsyncRecorder(log, cfg.RecorderBuffer, sinks...)
	ctl := game.NewController(log, game.OptionsFromConfig(cfg), recorder)
	dispatcher := message.NewDispatcher(log, ctl, cfg.MaxMalformed)

	ln, err := transport.Listen(cfg.TCPAddr())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// The recorder outlives the handlers so the final disconnect events
	// still reach the sinks.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	recDone := make(chan error, 1)
	go func() { recDone <- recorder.Run(recCtx) }()

	g.Go(func() error {
		return ctl.Run(gctx)
	})
	g.Go(func() error {
		return transport.Serve(gctx, ln, log, cfg.IdleTimeout, cfg.WriteTimeout, dispatcher.Serve)
	})

	if cfg.WSEnabled {
		hooks := websocket.Hooks{
			Stats: func() interface{} {
				s := ctl.Stats()
				return map[string]int{
					"connections": dispatcher.Connections(),
					"players":     s.Players,
					"queued":      s.Queued,
					"matches":     s.Matches,
				}
			},
			History: history,
		}
		srv := websocket.NewServer(gctx, cfg.WSAddr(), log, dispatcher.Serve, hooks, cfg.IdleTimeout, cfg.WriteTimeout)
		g.Go(func() error {
			log.Info("websocket listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	err = g.Wait()
	stopRecorder()
	<-recDone
	log.Info("shutdown complete")
	return err
}

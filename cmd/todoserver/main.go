package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/optimistic/cmd/internal/logcfg"
	"github.com/danmuck/optimistic/src/api/transport"
	"github.com/danmuck/optimistic/src/todos"
	logs "github.com/danmuck/smplog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "TOML config file (defaults built in)")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides config)")
	tcpAddr := flag.String("tcp", "", "TCP listen address (overrides config)")
	flag.Parse()

	cfg := todos.DefaultConfig()
	var cfgErr error
	if *configPath != "" {
		cfg, cfgErr = todos.LoadConfig(*configPath)
	}
	logs.Configure(logcfg.Load(cfg.LogConfig))
	if cfgErr != nil {
		logs.Fatalf(cfgErr, "failed to load config")
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *tcpAddr != "" {
		cfg.TCPAddr = *tcpAddr
	}
	if cfg.HTTPAddr == "" && cfg.TCPAddr == "" {
		logs.Fatalf(errors.New("no listeners"), "both http_addr and tcp_addr are empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := todos.NewStore(cfg)
	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: todos.NewHandler(store)}
		g.Go(func() error {
			logs.Infof("HTTP todo API listening on %s (%d seed todos)", cfg.HTTPAddr, len(cfg.Seed))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.TCPAddr != "" {
		handler := transport.NewTCPHandler(cfg.TCPAddr, store)
		if err := handler.ListenAndAccept(); err != nil {
			logs.Fatalf(err, "failed to listen on %s", cfg.TCPAddr)
		}
		logs.Infof("TCP todo API listening on %s", handler.Addr())
		g.Go(func() error {
			<-ctx.Done()
			return handler.Close()
		})
	}

	if err := g.Wait(); err != nil {
		logs.Fatal(err, "server exited")
	}
	logs.Infof("todo server stopped")
}

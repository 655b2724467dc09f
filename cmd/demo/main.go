package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/optimistic/cmd/internal/logcfg"
	"github.com/danmuck/optimistic/src/api/transport"
	"github.com/danmuck/optimistic/src/optimistic"
	"github.com/danmuck/optimistic/src/todos"
	logs "github.com/danmuck/smplog"
)

func newService(cfg RuntimeConfig) todos.Service {
	if cfg.Mode == ModeTCP {
		return transport.NewClient(cfg.TCPAddr)
	}
	return todos.NewClient(cfg.BaseURL, nil)
}

func logState(st optimistic.State[[]todos.Todo]) {
	done := 0
	for _, t := range st.Value {
		if t.Completed {
			done++
		}
	}
	if st.Err != nil {
		logs.Infof("[v%d] %s: %d todo(s), %d done, error: %v", st.Version, st.Status, len(st.Value), done, st.Err)
		return
	}
	logs.Infof("[v%d] %s: %d todo(s), %d done", st.Version, st.Status, len(st.Value), done)
}

func main() {
	cfg, err := parseCLI(os.Args[1:], defaultRuntimeConfig)
	if err != nil {
		fmt.Printf("Error: %v\n\n", err)
		printUsage(defaultRuntimeConfig)
		os.Exit(1)
	}
	logs.Configure(logcfg.Load(cfg.LogConfig))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := newService(cfg)
	initial, err := svc.List(ctx)
	if err != nil {
		logs.Fatalf(err, "failed to load todos over %s", cfg.Mode)
	}
	logs.Infof("loaded %d todo(s) over %s", len(initial), cfg.Mode)

	list := optimistic.NewList(initial, optimistic.FieldKey[todos.Todo]("id"), optimistic.Options{
		OnSuccess: func() { logs.Infof("Success!") },
		OnError:   func(err error) { logs.Warnf("rolled back: %v", err) },
	})
	defer list.Dispose()
	list.Subscribe(logState)

	agreed, err := newScript(list, svc, cfg).run(ctx)
	if err != nil {
		logs.Fatalf(err, "demo aborted")
	}
	if agreed {
		logs.Infof("local list matches the server")
	}
	for _, t := range list.Items() {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		logs.Printf("[%s] %s\n", mark, t.Text)
	}
}

// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autopilot-engine/internal/cli"
	"autopilot-engine/internal/config"
	"autopilot-engine/internal/handler"
	"autopilot-engine/internal/svc"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
)

var configFile = flag.String("f", "etc/autopilot-api.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx := svc.NewServiceContext(*cfg)
	defer svcCtx.Close()

	server := rest.MustNewServer(cfg.RestConf)
	handler.RegisterHandlers(server, svcCtx)

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := svcCtx.Metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logx.Errorf("metrics server: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svcCtx.Scheduler.Start(ctx); err != nil {
			logx.Errorf("scheduler: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		server.Stop()
	}()

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
	stop()
	<-done
}

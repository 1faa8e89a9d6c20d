package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/interceptor"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/netwrk"
	"github.com/xiaogangfan/rocketmq/snode"
)

var configFile = pflag.String("config", "bin/config.json", "Configuration file for the snode, json or yaml. Defaults to bin/config.json.")
var logLevel = pflag.String("log_level", log.DEFAULT_LEVEL, "Log level: debug, info, warn, error")
var logDir = pflag.String("log_dir", "", "Directory to mirror the log into, stderr only if empty")
var slowMs = pflag.Int("slow_ms", 500, "Warn about send and consume requests slower than this, 0 disables")

func main() {
	pflag.Parse()
	if err := log.Setup(*logLevel, *logDir); err != nil {
		log.Fatal(err)
	}
	defer log.Flush()

	id := ids.GetIDFromFlag()
	if id == nil {
		log.Fatal("no valid --id given")
	}
	cfg := config.LoadConfigFromFile(*configFile)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	loader := interceptor.StaticLoader{}
	if *slowMs > 0 {
		slow := interceptor.SlowRequestLogger{Threshold: time.Duration(*slowMs) * time.Millisecond}
		loader.Send = []interceptor.Interceptor{slow}
		loader.Consume = []interceptor.Interceptor{slow}
	}

	controller, err := snode.NewController(*id, cfg, snode.Options{Loader: loader, Registerer: registry})
	if err != nil {
		log.Fatal(err)
	}

	var httpServ *netwrk.HttpServ
	if cfg.MetricsAddr != "" {
		httpServ = netwrk.NewHttpServ(cfg.MetricsAddr, registry)
		if err := httpServ.Start(); err != nil {
			log.Fatalf("metrics endpoint: %v", err)
		}
	}

	if err := controller.Start(); err != nil {
		log.Errorf("snode %v failed to start: %v", id, err)
		controller.Shutdown()
		os.Exit(1)
	}
	log.Infof("snode %v (%s) serving on %v", id, cfg.SnodeName, controller.Server().Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %v, shutting down", s)

	controller.Shutdown()
	if httpServ != nil {
		if err := httpServ.Shutdown(); err != nil {
			log.Warningf("metrics endpoint shutdown: %v", err)
		}
	}
}

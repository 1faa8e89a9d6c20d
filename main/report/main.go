package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/xiaogangfan/rocketmq/collector"
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/data_processing"
	"github.com/xiaogangfan/rocketmq/log"
)

var configFile = pflag.String("config", "bin/config.json", "Configuration file listing the cluster members")
var collect = pflag.Bool("collect", false, "Copy measurement files from every cluster member over scp before reporting")
var knownHosts = pflag.String("known_hosts", "", "known_hosts file to check member host keys against, any key is accepted if empty")
var input = pflag.String("input", "measurements", "Directory holding the measurement csv files, one sub directory per node when collected")
var out = pflag.String("out", "report", "Directory for the summary, csv aggregates and plots")
var bucketUs = pflag.Int("bucket_us", 100, "Histogram bucket width in microseconds")
var windowMs = pflag.Int("window_ms", 1000, "Width of the latency-over-time windows in milliseconds")
var plot = pflag.Bool("plot", true, "Render png plots")

func main() {
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *collect {
		cfg := config.LoadConfigFromFile(*configFile)
		c := collector.NewCollector(&cfg.ClusterMembership, *input, collector.Options{KnownHosts: *knownHosts})
		if err := c.CollectAll(ctx); err != nil {
			log.Errorf("some nodes could not be collected: %v", err)
		}
	}

	report := data_processing.NewLatencyReport(*bucketUs, *windowMs)
	dirs := []string{*input}
	entries, err := os.ReadDir(*input)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(*input, e.Name()))
		}
	}
	for _, dir := range dirs {
		if err := report.LoadDir(dir); err != nil {
			log.Errorf("loading %s: %v", dir, err)
		}
	}
	report.Finish()
	if report.Rows() == 0 {
		log.Fatalf("no measurement rows found under %s", *input)
	}

	if err := report.WriteSummary(os.Stdout); err != nil {
		log.Fatal(err)
	}
	if err := report.WriteCSVs(*out); err != nil {
		log.Fatal(err)
	}
	if *plot {
		if err := data_processing.PlotReport(report, *out); err != nil {
			log.Errorf("plotting: %v", err)
		}
	}
	log.Infof("report of %d rows written to %s", report.Rows(), *out)
}

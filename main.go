package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mqtt-cerebro-bridge/pkg/bridge"
	"mqtt-cerebro-bridge/pkg/config"
	"mqtt-cerebro-bridge/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		os.Stdout.WriteString("cerebro2mqtt " + bridge.Version + "\n")
		return
	}

	logger.LogStartup("🚀 cerebro2mqtt %s starting", bridge.Version)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.LogError("Configuration error: %v", err)
		os.Exit(1)
	}

	app, err := bridge.New(cfg)
	if err != nil {
		logger.LogError("Initialization error: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.LogError("Startup error: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.LogInfo("Received signal %v", sig)

	app.Stop()
}

package main

import (
	"flag"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/metrics"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/notify"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/server"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/service"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path of the configuration file")
	flag.Parse()

	cfg, err := config.ReadConfigFrom(*configPath)
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init(cfg.LogDir, cfg.DebugMode)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner(loggerCallback)
	done := cleaner.Watch()

	store, err := database.Open(&cfg)
	if err != nil {
		logger.FatalF("Error occured while initializing database, details: %v", err)
		cleaner.Clean()
		return
	}
	cleaner.Add(store)

	signaler, err := notify.NewFileSignaler(cfg.Server.NotifyDir)
	if err != nil {
		logger.FatalF("Error occured while preparing notify dir, details: %v", err)
		cleaner.Clean()
		return
	}

	router := server.NewRouter(server.Permissions(cfg.Permissions))
	service.New(store).Register(router)

	srv := server.New(server.Options{
		SocketPath:          cfg.Server.SocketPath,
		SubscribeSocketPath: cfg.Server.SubscribeSocketPath,
		MaxConnections:      cfg.Server.MaxConnections,
	}, router, signaler)
	if err := srv.Start(); err != nil {
		logger.FatalF("%v", err)
		cleaner.Clean()
		return
	}
	cleaner.Add(srv)

	if cfg.Server.MetricsAddr != "" {
		cleaner.Add(metrics.Serve(cfg.Server.MetricsAddr))
	}

	logger.InfoF("%s ready with %d routes", cfg.AppName, len(router.Routes()))
	<-done
}

package main

import (
	"context"
	"flag"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/client"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/contacts"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/ipc"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/utils"
)

func logChanges(topic ipc.Topic, payload []byte, _ any) {
	set, err := ipc.DecodeChangeSet(payload)
	if err != nil {
		logger.WarnF("Undecodable %s change, details: %v", topic, err)
		return
	}
	for _, change := range set.Changes {
		logger.InfoF("%s %d %s", topic, change.ID, change.Kind)
	}
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path of the configuration file")
	name := flag.String("name", "contacts-watch", "client name presented to the broker")
	flag.Parse()

	cfg, err := config.ReadConfigFrom(*configPath)
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	cleaner := event.NewCleaner(logger.Init(cfg.LogDir, cfg.DebugMode))
	done := cleaner.Watch()

	transport := ipc.NewUnixTransport(utils.ParseStringTimeOr(cfg.Server.DialTimeout, 5*time.Second))
	reg := client.NewRegistry(transport, client.Options{
		Address:          cfg.Server.SocketPath,
		SubscribeAddress: cfg.Server.SubscribeSocketPath,
		Credentials:      ipc.Credentials{Name: *name},
	})
	cleaner.Add(event.CallableFunc(func(context.Context) error {
		reg.Shutdown()
		return nil
	}))

	c, err := contacts.Connect(reg, client.ProcessKey)
	if err != nil {
		logger.FatalF("Fail to connect to the contacts broker, details: %v", err)
		cleaner.Clean()
		return
	}
	for _, topic := range ipc.Topics() {
		if err := c.Subscribe(topic, logChanges, nil); err != nil {
			logger.ErrorF("Fail to watch %s, details: %v", topic, err)
		}
	}
	if v, err := c.CurrentVersion(); err == nil {
		logger.InfoF("Watching changes from version %d", v)
	}

	// poll keeps the session healthy: a dropped broker is only recovered on
	// the next call
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := c.CurrentVersion(); err != nil {
				logger.WarnF("Broker unreachable, details: %v", err)
			}
		}
	}
}

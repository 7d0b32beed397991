package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

const DefaultPath = "config.json"

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

type Config struct {
	Database struct {
		Driver             string `json:"driver"`
		Host               string `json:"host"`
		Port               uint64 `json:"port"`
		Username           string `json:"username"`
		Password           string `json:"password"`
		Database           string `json:"database"`
		UseTLS             bool   `json:"use_tls"`
		ConnectTimeout     string `json:"connect_timeout"`
		SocketTimeout      string `json:"socket_timeout"`
		ConnectIdleTimeout string `json:"connect_idle_timeout"`
		OperationTimeout   string `json:"operation_timeout"`
		Heartbeat          string `json:"heartbeat"`
		MinPoolSize        uint64 `json:"min_pool_size"`
		MaxPoolSize        uint64 `json:"max_pool_size"`
		CacheSize          int    `json:"cache_size"`
		CacheTTL           string `json:"cache_ttl"`
	} `json:"database"`
	Server struct {
		SocketPath          string `json:"socket_path"`
		SubscribeSocketPath string `json:"subscribe_socket_path"`
		MaxConnections      int    `json:"max_connections"`
		NotifyDir           string `json:"notify_dir"`
		MetricsAddr         string `json:"metrics_addr"`
		DialTimeout         string `json:"dial_timeout"`
	} `json:"server"`
	// Permissions maps a client name (sent with its credentials on connect)
	// to the permission ids it is granted. "*" applies to every client.
	Permissions map[string][]string `json:"permissions"`
	DebugMode   bool                `json:"debug_mode"`
	AppName     string              `json:"app_name"`
	LogDir      string              `json:"log_dir"`
}

var (
	config      Config
	initialized = false
	mu          sync.Mutex
)

// Default returns the configuration written when no file exists yet.
func Default() Config {
	c := Config{AppName: "contacts-broker", LogDir: "logs"}
	c.Database.Driver = DriverMemory
	c.Database.Host = "localhost"
	c.Database.Port = 27017
	c.Database.Database = "contacts"
	c.Database.ConnectTimeout = "10s"
	c.Database.SocketTimeout = "30s"
	c.Database.ConnectIdleTimeout = "5m"
	c.Database.OperationTimeout = "5s"
	c.Database.Heartbeat = "10s"
	c.Database.MinPoolSize = 1
	c.Database.MaxPoolSize = 16
	c.Database.CacheSize = 256
	c.Database.CacheTTL = "1h"
	c.Server.SocketPath = "/tmp/.contacts-svc.sock"
	c.Server.SubscribeSocketPath = "/tmp/.contacts-svc-subscribe.sock"
	c.Server.MaxConnections = 1024
	c.Server.NotifyDir = "/tmp/contacts-notify"
	c.Server.DialTimeout = "5s"
	c.Permissions = map[string][]string{
		"*": {"contacts.read", "contacts.write", "calllog.read", "calllog.write"},
	}
	return c
}

func ReadConfig() (Config, error) {
	return ReadConfigFrom(DefaultPath)
}

func ReadConfigFrom(path string) (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	bytes, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("unable to read configuration file %s: %w", path, err)
		}
		data, _ := json.MarshalIndent(Default(), "", "\t")
		if werr := os.WriteFile(path, data, 0644); werr != nil {
			return config, fmt.Errorf("unable to create configuration file %s: %w", path, werr)
		}
		return config, errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	}

	loaded := Default()
	if err = json.Unmarshal(bytes, &loaded); err != nil {
		return config, fmt.Errorf("the configuration file does not contain valid JSON: %w", err)
	}

	config = loaded
	initialized = true
	return config, nil
}

// GetConfig returns the loaded configuration, reading the default file on
// first use.
func GetConfig() (Config, error) {
	mu.Lock()
	if initialized {
		defer mu.Unlock()
		return config, nil
	}
	mu.Unlock()
	return ReadConfig()
}

// Set installs c as the process configuration without touching disk.
func Set(c Config) {
	mu.Lock()
	defer mu.Unlock()
	config = c
	initialized = true
}

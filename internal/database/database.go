package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Open returns the Store selected by the configured driver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "", config.DriverMemory:
		logger.Info("Using in-memory contacts store")
		return NewMemoryStore(), nil
	case config.DriverMongo:
		store, err := ConnectDatabase(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func databaseURI(cfg *config.Config) string {
	// 编码特殊字符
	encodedUser := url.QueryEscape(cfg.Database.Username)
	encodedPass := url.QueryEscape(cfg.Database.Password)
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		cfg.Database.Host,
		cfg.Database.Port,
	)
}

func ConnectDatabase(cfg *config.Config) (*DBStore, error) {
	logger.DebugF("Connecting to database...")

	operationTimeout := utils.ParseStringTimeOr(cfg.Database.OperationTimeout, 5*time.Second)

	clientOptions := options.Client().ApplyURI(databaseURI(cfg)).SetAppName(cfg.AppName)
	// 连接池配置
	clientOptions.SetMinPoolSize(cfg.Database.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.Database.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTime(cfg.Database.ConnectIdleTimeout))
	// 超时限制
	clientOptions.SetConnectTimeout(utils.ParseStringTime(cfg.Database.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.ParseStringTime(cfg.Database.SocketTimeout))
	// 心跳包
	clientOptions.SetHeartbeatInterval(utils.ParseStringTime(cfg.Database.Heartbeat))
	if cfg.Database.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %+v", evt)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %+v", evt)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %v", err)
	}

	db := client.Database(cfg.Database.Database)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	cacheSize := cfg.Database.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	store := &DBStore{
		client:           client,
		db:               db,
		operationTimeout: operationTimeout,
		persons:          expirable.NewLRU[int64, *Person](cacheSize, nil, utils.ParseStringTimeOr(cfg.Database.CacheTTL, time.Hour)),
	}
	logger.InfoF("Connected to database %s, collections %v", cfg.Database.Database, collectionsList)
	return store, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(GroupMemberCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "person_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("group_members_unique"),
	})
	if err != nil {
		return fmt.Errorf("error occured while creating database indexes: %v", err)
	}
	_, err = db.Collection(ChangeCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "topic", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetName("changes_topic_version"),
	})
	if err != nil {
		return fmt.Errorf("error occured while creating database indexes: %v", err)
	}
	return nil
}

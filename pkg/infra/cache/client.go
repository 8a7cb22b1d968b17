package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
}

// Client is the redis handle shared by the event publisher and listener.
// The pipeline uses redis for pub/sub only; keyspace access stays behind
// RedisClient for the rare caller that needs it.
type Client interface {
	RedisClient() *redis.Client
	Ping(ctx context.Context) error
	Close() error
}

type client struct {
	redisClient *redis.Client
}

func NewClient(config Config, logger *logrus.Logger) (Client, error) {
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	}
	if config.TLS {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	redisClient := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"host":  config.Host,
			"port":  config.Port,
			"error": err.Error(),
		}).Error("failed to connect to redis")
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host": config.Host,
		"port": config.Port,
	}).Info("redis connected successfully")

	return &client{
		redisClient: redisClient,
	}, nil
}

func (c *client) RedisClient() *redis.Client {
	return c.redisClient
}

func (c *client) Ping(ctx context.Context) error {
	return c.redisClient.Ping(ctx).Err()
}

func (c *client) Close() error {
	return c.redisClient.Close()
}

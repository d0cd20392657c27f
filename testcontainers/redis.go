package testcontainers

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisPort = "6379/tcp"

// RedisConfig holds the connection settings of a Redis test container.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type RedisContainer struct {
	testcontainers.Container
	at endpoint
}

// NewRedisContainer starts redis:7-alpine and waits until it accepts
// connections. The server runs without a password.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	c, ep, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{redisPort},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, redisPort)
	if err != nil {
		return nil, err
	}

	return &RedisContainer{Container: c, at: ep}, nil
}

// GetAddress returns host:port.
func (c *RedisContainer) GetAddress() string {
	return c.at.Address()
}

package testcontainers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// endpoint is where a started container can be reached from the test.
type endpoint struct {
	Host string
	Port int
}

func (e endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// start runs req and resolves the host mapping of port.
func start(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, endpoint, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, endpoint{}, fmt.Errorf("failed to start %s: %w", req.Image, err)
	}

	ep, err := resolve(ctx, c, port)
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, endpoint{}, err
	}

	return c, ep, nil
}

func resolve(ctx context.Context, c testcontainers.Container, port string) (endpoint, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return endpoint{}, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return endpoint{}, fmt.Errorf("failed to get mapped port %s: %w", port, err)
	}

	p, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return endpoint{}, fmt.Errorf("failed to parse port: %w", err)
	}

	return endpoint{Host: host, Port: p}, nil
}

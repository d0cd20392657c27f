package testcontainers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresPort = "5432/tcp"
	pgUser       = "docparse"
	pgPassword   = "docparse"
	pgDatabase   = "docparse_test"
)

// PostgresConfig holds PostgreSQL connection configuration for tests
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	DSN      string
}

type PostgresContainer struct {
	testcontainers.Container
	at endpoint
}

// NewPostgresContainer starts postgres:16-alpine. The server logs readiness
// twice, once for the init run and once for the real start.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	c, ep, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}, postgresPort)
	if err != nil {
		return nil, err
	}

	return &PostgresContainer{Container: c, at: ep}, nil
}

// Config returns the connection settings including a pgx DSN.
func (c *PostgresContainer) Config() *PostgresConfig {
	return &PostgresConfig{
		Host:     c.at.Host,
		Port:     c.at.Port,
		User:     pgUser,
		Password: pgPassword,
		Database: pgDatabase,
		DSN: fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
			pgUser, pgPassword, c.at.Address(), pgDatabase),
	}
}

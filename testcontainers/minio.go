package testcontainers

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioPort      = "9000/tcp"
	minioAccessKey = "minioadmin"
	minioSecretKey = "minioadmin"
	minioRegion    = "us-east-1"
)

// S3Config holds the endpoint and static credentials of an S3 compatible
// test server.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// MinioContainer runs MinIO as a local S3 endpoint.
type MinioContainer struct {
	testcontainers.Container
	at endpoint
}

func NewMinioContainer(ctx context.Context) (*MinioContainer, error) {
	c, ep, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{minioPort},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioAccessKey,
			"MINIO_ROOT_PASSWORD": minioSecretKey,
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort(minioPort),
	}, minioPort)
	if err != nil {
		return nil, err
	}

	return &MinioContainer{Container: c, at: ep}, nil
}

func (c *MinioContainer) Config() *S3Config {
	return &S3Config{
		Endpoint:  "http://" + c.at.Address(),
		Region:    minioRegion,
		AccessKey: minioAccessKey,
		SecretKey: minioSecretKey,
	}
}

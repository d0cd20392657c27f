package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/models"
	"github.com/Vector/vector-docparse/postgres"
	"github.com/Vector/vector-docparse/sqlite"
)

const (
	sqliteFile = "files.db"
	blobDir    = "blobs"
)

// OpenFiles returns the file metadata repository: postgres when a dsn is
// configured, sqlite inside the data folder otherwise. The closer releases
// the database handle.
func OpenFiles(ctx context.Context, cfg *Config, log *zap.Logger) (models.FileRepository, io.Closer, error) {
	if cfg.Dsn != "" {
		db, err := postgres.Open(cfg.Dsn)
		if err != nil {
			return nil, nil, err
		}

		repo, err := postgres.NewFileRepository(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		log.Info("using postgres file repository")

		return repo, db, nil
	}

	if err := os.MkdirAll(cfg.DataFolder, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data folder: %w", err)
	}

	path := filepath.Join(cfg.DataFolder, sqliteFile)

	store, err := sqlite.New(path)
	if err != nil {
		return nil, nil, err
	}

	log.Info("using sqlite file repository", zap.String("path", path))

	return store, store, nil
}

// OpenBlobs returns the blob store: S3 when a bucket is configured, a local
// directory inside the data folder otherwise.
func OpenBlobs(ctx context.Context, cfg *Config, log *zap.Logger) (blobstore.Store, error) {
	if cfg.S3Bucket != "" {
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.AwsRegion,
			AccessKey: cfg.AwsAccessKey,
			SecretKey: cfg.AwsSecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}

		log.Info("using s3 blob store", zap.String("bucket", cfg.S3Bucket))

		return store, nil
	}

	root := filepath.Join(cfg.DataFolder, blobDir)

	store, err := blobstore.NewLocalStore(root)
	if err != nil {
		return nil, err
	}

	log.Info("using local blob store", zap.String("root", root))

	return store, nil
}

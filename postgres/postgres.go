// Package postgres stores file metadata in PostgreSQL through gorm on top of
// the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Vector/vector-docparse/models"
)

var _ models.FileRepository = (*repository)(nil)

// fileRecord is the files table. Deletes are soft; a deleted row is invisible
// to Get and List but keeps its id reserved.
type fileRecord struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Filename    string         `gorm:"column:filename;not null"`
	ContentType string         `gorm:"column:content_type;not null;default:''"`
	Size        int64          `gorm:"column:size;not null"`
	StorageKey  string         `gorm:"column:storage_key;not null"`
	OwnerID     string         `gorm:"column:owner_id;not null;index:files_owner_idx,priority:1"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (fileRecord) TableName() string { return "files" }

func (r *fileRecord) toModel() models.File {
	return models.File{
		ID:          r.ID,
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Size:        r.Size,
		StorageKey:  r.StorageKey,
		OwnerID:     r.OwnerID,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func recordFromModel(f *models.File) fileRecord {
	return fileRecord{
		ID:          f.ID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		StorageKey:  f.StorageKey,
		OwnerID:     f.OwnerID,
		CreatedAt:   f.CreatedAt,
	}
}

type repository struct {
	db *gorm.DB
}

// Open connects to dsn using the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// NewFileRepository creates a PostgreSQL implementation of
// models.FileRepository and makes sure the files table exists.
func NewFileRepository(ctx context.Context, db *sql.DB) (models.FileRepository, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(&fileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate files table: %w", err)
	}

	return &repository{db: gdb}, nil
}

func (repo *repository) Create(ctx context.Context, file *models.File) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	rec := recordFromModel(file)

	if err := repo.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrAlreadyExists
		}

		return fmt.Errorf("failed to create file: %w", err)
	}

	file.ID = rec.ID

	return nil
}

func (repo *repository) Get(ctx context.Context, id int64) (models.File, error) {
	var rec fileRecord

	if err := repo.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.File{}, models.ErrNotFound
		}

		return models.File{}, fmt.Errorf("failed to get file: %w", err)
	}

	return rec.toModel(), nil
}

func (repo *repository) List(ctx context.Context, ownerID string, page, size int) ([]models.File, int, error) {
	offset, err := models.Page(page, size)
	if err != nil {
		return nil, 0, err
	}

	q := repo.db.WithContext(ctx).Model(&fileRecord{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	var recs []fileRecord
	if err := q.Order("id DESC").Limit(size).Offset(offset).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}

	ans := make([]models.File, len(recs))
	for i := range recs {
		ans[i] = recs[i].toModel()
	}

	return ans, int(total), nil
}

func (repo *repository) Delete(ctx context.Context, id int64) error {
	res := repo.db.WithContext(ctx).Delete(&fileRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete file: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}

	return nil
}

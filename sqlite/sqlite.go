// Package sqlite stores file metadata in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/Vector/vector-docparse/models"
)

var _ models.FileRepository = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path.
func New(path string) (*Store, error) {
	db, err := initDatabase(path)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (repo *Store) Close() error {
	return repo.db.Close()
}

func (repo *Store) Create(ctx context.Context, file *models.File) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	item := fileToRow(file)

	var (
		res sql.Result
		err error
	)

	if item.ID == 0 {
		const q = `INSERT INTO files (filename, content_type, size, storage_key, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`

		res, err = repo.db.ExecContext(ctx, q, item.Filename, item.ContentType, item.Size, item.StorageKey, item.OwnerID, item.CreatedAt)
	} else {
		const q = `INSERT INTO files (id, filename, content_type, size, storage_key, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

		res, err = repo.db.ExecContext(ctx, q, item.ID, item.Filename, item.ContentType, item.Size, item.StorageKey, item.OwnerID, item.CreatedAt)
	}

	if err != nil {
		if isConstraintError(err) {
			return models.ErrAlreadyExists
		}

		return fmt.Errorf("failed to create file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	file.ID = id

	return nil
}

func (repo *Store) Get(ctx context.Context, id int64) (models.File, error) {
	const q = `SELECT id, filename, content_type, size, storage_key, owner_id, created_at FROM files WHERE id = ?`

	row := repo.db.QueryRowContext(ctx, q, id)

	f, err := rowToFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.File{}, models.ErrNotFound
	}

	return f, err
}

func (repo *Store) List(ctx context.Context, ownerID string, page, size int) ([]models.File, int, error) {
	offset, err := models.Page(page, size)
	if err != nil {
		return nil, 0, err
	}

	var total int

	err = repo.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE owner_id = ?`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	const q = `SELECT id, filename, content_type, size, storage_key, owner_id, created_at FROM files
		WHERE owner_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := repo.db.QueryContext(ctx, q, ownerID, size, offset)
	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	ans := []models.File{}

	for rows.Next() {
		f, err := rowToFile(rows)
		if err != nil {
			return nil, 0, err
		}

		ans = append(ans, f)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return ans, total, nil
}

func (repo *Store) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM files WHERE id = ?`

	res, err := repo.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return models.ErrNotFound
	}

	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func rowToFile(row scannable) (models.File, error) {
	var f file

	err := row.Scan(&f.ID, &f.Filename, &f.ContentType, &f.Size, &f.StorageKey, &f.OwnerID, &f.CreatedAt)
	if err != nil {
		return models.File{}, err
	}

	return models.File{
		ID:          f.ID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		StorageKey:  f.StorageKey,
		OwnerID:     f.OwnerID,
		CreatedAt:   time.Unix(f.CreatedAt, 0).UTC(),
	}, nil
}

func fileToRow(item *models.File) file {
	return file{
		ID:          item.ID,
		Filename:    item.Filename,
		ContentType: item.ContentType,
		Size:        item.Size,
		StorageKey:  item.StorageKey,
		OwnerID:     item.OwnerID,
		CreatedAt:   item.CreatedAt.Unix(),
	}
}

type file struct {
	ID          int64
	Filename    string
	ContentType string
	Size        int64
	StorageKey  string
	OwnerID     string
	CreatedAt   int64
}

func isConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func initDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, createSchema(db)
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size INT NOT NULL,
			storage_key TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS files_owner_idx ON files (owner_id, id);
	`)

	return err
}

// Package delivery streams stored files to holders of a valid download token
// and issues those tokens to authenticated owners.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/vector-docparse/blobstore"
	"github.com/Vector/vector-docparse/models"
)

const (
	DefaultChunkSize = 32 << 10
	DefaultTokenTTL  = 5 * time.Minute
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrAccessDenied = errors.New("access denied")
)

// Tokens issues and validates download tokens.
type Tokens interface {
	Issue(fileID int64, ttl time.Duration) (string, error)
	Validate(tok string) (int64, error)
}

type FileLookup interface {
	Get(ctx context.Context, id int64) (models.File, error)
}

// Metadata describes the file about to be streamed. Size is -1 when unknown.
type Metadata struct {
	FileID      int64
	Filename    string
	ContentType string
	Size        int64
}

// Sink receives a stream. Begin is called exactly once, before the first
// Write, and only after the token and the blob have been checked.
type Sink interface {
	io.Writer
	Begin(meta Metadata) error
}

type Service struct {
	tokens    Tokens
	files     FileLookup
	blobs     blobstore.Store
	chunkSize int
	ttl       time.Duration
	log       *zap.Logger
}

type Option func(*Service)

func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= time.Second {
			s.ttl = ttl
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func New(tokens Tokens, files FileLookup, blobs blobstore.Store, opts ...Option) *Service {
	s := &Service{
		tokens:    tokens,
		files:     files,
		blobs:     blobs,
		chunkSize: DefaultChunkSize,
		ttl:       DefaultTokenTTL,
		log:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IssueToken returns a download token for a file owned by requesterID along
// with its lifetime.
func (s *Service) IssueToken(ctx context.Context, fileID int64, requesterID string) (string, time.Duration, error) {
	file, err := s.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", 0, ErrNotFound
		}

		return "", 0, fmt.Errorf("failed to load file %d: %w", fileID, err)
	}

	if file.OwnerID != requesterID {
		return "", 0, ErrAccessDenied
	}

	tok, err := s.tokens.Issue(fileID, s.ttl)
	if err != nil {
		return "", 0, fmt.Errorf("failed to issue token: %w", err)
	}

	return tok, s.ttl.Truncate(time.Second), nil
}

// Stream validates tok and copies the file it grants into sink in fixed-size
// chunks. The blob handle is released exactly once on every path, including
// client disconnects, which are noticed through ctx between chunks.
func (s *Service) Stream(ctx context.Context, tok string, sink Sink) error {
	fileID, err := s.tokens.Validate(tok)
	if err != nil {
		return err
	}

	file, err := s.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("failed to load file %d: %w", fileID, err)
	}

	obj, err := s.blobs.Open(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.log.Warn("blob missing for file", zap.Int64("file_id", fileID), zap.String("key", file.StorageKey))
			return ErrNotFound
		}

		return fmt.Errorf("failed to open blob: %w", err)
	}

	body := &onceCloser{ReadCloser: obj.Body}
	defer body.Close()

	meta := Metadata{
		FileID:      file.ID,
		Filename:    file.Filename,
		ContentType: firstNonEmpty(obj.ContentType, file.ContentType, "application/octet-stream"),
		Size:        obj.Size,
	}

	if meta.Size < 0 && file.Size > 0 {
		meta.Size = file.Size
	}

	if err := sink.Begin(meta); err != nil {
		return err
	}

	written, err := s.copy(ctx, sink, body)
	if err != nil {
		s.log.Info("download interrupted",
			zap.Int64("file_id", fileID),
			zap.Int64("bytes", written),
			zap.Error(err),
		)

		return err
	}

	s.log.Debug("download complete", zap.Int64("file_id", fileID), zap.Int64("bytes", written))

	return nil
}

func (s *Service) copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, s.chunkSize)

	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)

			if werr != nil {
				return written, werr
			}

			if w != n {
				return written, io.ErrShortWrite
			}
		}

		if errors.Is(rerr, io.EOF) {
			return written, nil
		}

		if rerr != nil {
			return written, rerr
		}
	}
}

type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.err = c.ReadCloser.Close()
	})

	return c.err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}

// Package upload sends a local directory tree to the archival bucket.
package upload

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "osf_uploads_total",
	Help: "Total number of file uploads by result",
}, []string{"result"}) // "success", "error"

// FileUploader puts a local file into the bucket. *sink.ObjectStore
// satisfies it.
type FileUploader interface {
	EnsureBucket(ctx context.Context) error
	UploadFile(ctx context.Context, objectName, path string) (int64, error)
}

// Config holds uploader configuration.
type Config struct {
	// MaxConcurrency bounds parallel uploads. Zero means one goroutine
	// per file.
	MaxConcurrency int
}

// Result summarizes an upload.
type Result struct {
	Files    int
	Bytes    int64
	Duration time.Duration
}

// Uploader walks a directory and uploads each regular file.
type Uploader struct {
	uploader FileUploader
	config   Config
	logger   zerolog.Logger
}

// NewUploader creates a new uploader.
func NewUploader(uploader FileUploader, config Config, logger zerolog.Logger) *Uploader {
	return &Uploader{
		uploader: uploader,
		config:   config,
		logger:   logger,
	}
}

// UploadDir uploads every regular file below source as an object named by
// its slash-separated path relative to source. The bucket is created when
// missing. The first failure cancels the remaining uploads.
func (u *Uploader) UploadDir(ctx context.Context, source string) (Result, error) {
	start := time.Now()

	if err := u.uploader.EnsureBucket(ctx); err != nil {
		return Result{}, err
	}

	var files, bytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	if u.config.MaxConcurrency > 0 {
		g.SetLimit(u.config.MaxConcurrency)
	}

	walkErr := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		object := filepath.ToSlash(rel)

		g.Go(func() error {
			n, err := u.uploader.UploadFile(gctx, object, path)
			if err != nil {
				uploadsTotal.WithLabelValues("error").Inc()
				return err
			}

			uploadsTotal.WithLabelValues("success").Inc()
			files.Add(1)
			bytes.Add(n)
			u.logger.Debug().Str("object", object).Int64("bytes", n).Msg("File uploaded")
			return nil
		})
		return nil
	})

	err := g.Wait()
	if walkErr != nil && err == nil {
		err = fmt.Errorf("walk %s: %w", source, walkErr)
	}

	result := Result{
		Files:    int(files.Load()),
		Bytes:    bytes.Load(),
		Duration: time.Since(start),
	}

	if err != nil {
		u.logger.Error().Err(err).Int("uploaded", result.Files).Msg("Upload aborted")
		return result, err
	}

	u.logger.Info().
		Int("files", result.Files).
		Int64("bytes", result.Bytes).
		Dur("duration", result.Duration).
		Msg("Upload complete")

	return result, nil
}

// Package files downloads a project's osfstorage as a single zip archive
// and extracts it next to the wiki dump.
package files

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/osf-archiver/pkg/osf"
	"github.com/rs/zerolog"
)

// Streamer opens a download and fails on a non-2xx final status.
// *client.Client satisfies it.
type Streamer interface {
	Stream(ctx context.Context, ref string) (*http.Response, error)
}

// Config holds downloader configuration.
type Config struct {
	// FilesBaseURL is the root the v1 resources API is served from.
	// Empty means the client's base URL.
	FilesBaseURL string

	// KeepArchive leaves the downloaded zip in place after extraction.
	KeepArchive bool
}

// Result summarizes a download.
type Result struct {
	Dir          string
	ArchiveBytes int64
	Files        int
	Duration     time.Duration
}

// Downloader fetches and extracts osfstorage archives.
type Downloader struct {
	streamer Streamer
	config   Config
	logger   zerolog.Logger
}

// NewDownloader creates a new downloader.
func NewDownloader(streamer Streamer, config Config, logger zerolog.Logger) *Downloader {
	return &Downloader{
		streamer: streamer,
		config:   config,
		logger:   logger,
	}
}

// FilesDir returns <directory>/<guid>/files.
func FilesDir(directory, guid string) string {
	return filepath.Join(directory, guid, "files")
}

// Download stores guid's osfstorage under <directory>/<guid>/files: the
// zip is written to <guid>.zip there, extracted in place, then removed.
func (d *Downloader) Download(ctx context.Context, directory, guid string) (Result, error) {
	start := time.Now()
	dir := FilesDir(directory, guid)
	logger := d.logger.With().Str("guid", guid).Str("dir", dir).Logger()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dir, err)
	}

	resp, err := d.streamer.Stream(ctx, osf.FilesZipURL(d.config.FilesBaseURL, guid))
	if err != nil {
		return Result{}, fmt.Errorf("download files of %s: %w", guid, err)
	}
	defer resp.Body.Close()

	zipPath := filepath.Join(dir, guid+".zip")
	size, err := writeFile(zipPath, resp.Body)
	if err != nil {
		return Result{}, err
	}

	logger.Info().Int64("bytes", size).Msg("Files archive downloaded")

	count, err := Extract(zipPath, dir)
	if err != nil {
		return Result{}, err
	}

	if !d.config.KeepArchive {
		if err := os.Remove(zipPath); err != nil {
			return Result{}, fmt.Errorf("remove %s: %w", zipPath, err)
		}
	}

	result := Result{
		Dir:          dir,
		ArchiveBytes: size,
		Files:        count,
		Duration:     time.Since(start),
	}

	logger.Info().
		Int("files", count).
		Dur("duration", result.Duration).
		Msg("Files extracted")

	return result, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// Extract unpacks every entry of the zip at zipPath into dir and returns
// the number of regular files written. Entries that would land outside
// dir fail the extraction.
func Extract(zipPath, dir string) (int, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return count, fmt.Errorf("zip entry %q escapes %s", f.Name, dir)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	_, err = writeFile(target, rc)
	return err
}

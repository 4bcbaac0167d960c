// Package wikidump archives every wiki page of an OSF registration or node:
// it discovers and collects the paginated wiki listing, then fetches and
// persists each page's content.
package wikidump

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/osf-archiver/pkg/archive"
	"github.com/Sternrassler/osf-archiver/pkg/pagination"
	"github.com/rs/zerolog"
)

// Source is what the dumper needs from the API: paginated listings and
// content by locator. *osf.WikiSource satisfies it.
type Source interface {
	pagination.PageSource
	archive.ContentFetcher
}

// Config holds dumper configuration.
type Config struct {
	Pages   pagination.Config
	Content archive.Config
}

// Result summarizes a dump.
type Result struct {
	Pages    int
	Items    int
	Bytes    int64
	Duration time.Duration
}

// Dumper runs the discover, collect, and write stages once per call.
type Dumper struct {
	collector *pagination.Collector
	writer    *archive.Writer
	logger    zerolog.Logger
}

// New creates a dumper reading from source and persisting to sink.
func New(source Source, sink archive.Sink, config Config, logger zerolog.Logger) *Dumper {
	return &Dumper{
		collector: pagination.NewCollector(source, config.Pages),
		writer:    archive.NewWriter(source, sink, config.Content, logger),
		logger:    logger,
	}
}

// Run dumps the wiki of guid. Any failure aborts the dump; items already
// persisted stay in the sink.
func (d *Dumper) Run(ctx context.Context, guid string) (Result, error) {
	start := time.Now()
	logger := d.logger.With().Str("guid", guid).Logger()

	logger.Info().Msg("Collecting wiki listing")
	items, pages, err := d.collector.CollectAll(ctx, guid)
	if err != nil {
		return Result{}, fmt.Errorf("collect wiki listing of %s: %w", guid, err)
	}

	logger.Info().
		Int("pages", pages).
		Int("items", len(items)).
		Msg("Writing wiki content")

	written, err := d.writer.WriteAll(ctx, items)
	result := Result{
		Pages:    pages,
		Items:    written.Items,
		Bytes:    written.Bytes,
		Duration: time.Since(start),
	}
	if err != nil {
		return result, fmt.Errorf("write wiki content of %s: %w", guid, err)
	}

	logger.Info().
		Int("items", result.Items).
		Int64("bytes", result.Bytes).
		Dur("duration", result.Duration).
		Msg("Wiki dump complete")

	return result, nil
}

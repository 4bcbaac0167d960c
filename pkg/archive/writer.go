// Package archive fetches the content of listed items concurrently and
// hands each to a Sink under the item's name.
package archive

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/osf-archiver/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	itemsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_items_written_total",
		Help: "Total number of items persisted to a sink",
	})

	writtenBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_written_bytes_total",
		Help: "Total bytes persisted to a sink",
	})
)

// ContentFetcher retrieves the raw content behind an item locator.
type ContentFetcher interface {
	FetchContent(ctx context.Context, locator string) ([]byte, error)
}

// Sink persists content under a name. Persisting a name twice replaces
// the earlier content.
type Sink interface {
	Persist(ctx context.Context, name string, data []byte) error
}

// Result summarizes a WriteAll run.
type Result struct {
	Items int
	Bytes int64
}

// Config holds writer configuration.
type Config struct {
	// MaxConcurrency bounds parallel item tasks. Zero means one goroutine
	// per item.
	MaxConcurrency int
}

// Writer runs one fetch-then-persist task per item.
type Writer struct {
	fetcher ContentFetcher
	sink    Sink
	config  Config
	logger  zerolog.Logger
}

// NewWriter creates a new writer.
func NewWriter(fetcher ContentFetcher, sink Sink, config Config, logger zerolog.Logger) *Writer {
	return &Writer{
		fetcher: fetcher,
		sink:    sink,
		config:  config,
		logger:  logger,
	}
}

// WriteAll fetches and persists every item. Tasks share no state; the
// first failure cancels the rest and is returned. Items with the same
// name race and the last completed persist wins.
func (w *Writer) WriteAll(ctx context.Context, items []pagination.Item) (Result, error) {
	start := time.Now()
	var written, bytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	if w.config.MaxConcurrency > 0 {
		g.SetLimit(w.config.MaxConcurrency)
	}

	for _, item := range items {
		g.Go(func() error {
			data, err := w.fetcher.FetchContent(gctx, item.Locator)
			if err != nil {
				return fmt.Errorf("fetch content of %q: %w", item.Name, err)
			}

			if err := w.sink.Persist(gctx, item.Name, data); err != nil {
				return fmt.Errorf("persist %q: %w", item.Name, err)
			}

			written.Add(1)
			bytes.Add(int64(len(data)))
			itemsWrittenTotal.Inc()
			writtenBytesTotal.Add(float64(len(data)))

			w.logger.Debug().
				Str("name", item.Name).
				Int("bytes", len(data)).
				Msg("Item persisted")
			return nil
		})
	}

	result := func() Result {
		return Result{Items: int(written.Load()), Bytes: bytes.Load()}
	}

	if err := g.Wait(); err != nil {
		w.logger.Error().
			Err(err).
			Int("written", int(written.Load())).
			Int("total", len(items)).
			Msg("Content write aborted")
		return result(), err
	}

	w.logger.Info().
		Int("items", len(items)).
		Int64("bytes", bytes.Load()).
		Dur("duration", time.Since(start)).
		Msg("Content written")

	return result(), nil
}

package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "osf_pages_fetched_total",
	Help: "Total number of listing pages fetched",
})

// progressEvery controls how often collection progress is logged.
const progressEvery = 50

// Config holds collector configuration.
type Config struct {
	// MaxConcurrency bounds parallel page fetches. Zero means one
	// goroutine per remaining page.
	MaxConcurrency int

	// Timeout per page fetch, retries included. Zero means none.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration: unbounded fan-out and
// no per-page timeout.
func DefaultConfig() Config {
	return Config{}
}

// Collector discovers a listing's page count and collects all of its pages.
type Collector struct {
	source PageSource
	config Config
}

// NewCollector creates a new collector.
func NewCollector(source PageSource, config Config) *Collector {
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}

	return &Collector{
		source: source,
		config: config,
	}
}

// Discover fetches page 1 and returns it together with the number of
// additional pages. A listing without a next link has no additional pages
// whatever its counts say.
func (c *Collector) Discover(ctx context.Context, collectionID string) (*Page, int, error) {
	first, err := c.fetch(ctx, collectionID, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch first page: %w", err)
	}

	if !first.HasNext {
		return first, 0, nil
	}

	additional, err := AdditionalPages(first.Total, first.PerPage)
	if err != nil {
		return nil, 0, fmt.Errorf("collection %s: %w", collectionID, err)
	}

	return first, additional, nil
}

// CollectRemaining fetches pages 2..additional+1 concurrently. Slot i of
// the result holds the items of page i+2. The first failure cancels the
// remaining fetches and no partial result is returned.
func (c *Collector) CollectRemaining(ctx context.Context, collectionID string, additional int) ([][]Item, error) {
	if additional <= 0 {
		return nil, nil
	}

	start := time.Now()
	slots := make([][]Item, additional)

	g, gctx := errgroup.WithContext(ctx)
	if c.config.MaxConcurrency > 0 {
		g.SetLimit(c.config.MaxConcurrency)
	}

	progress := make(chan struct{}, additional)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fetched := 1
		for range progress {
			fetched++
			if fetched%progressEvery == 0 {
				log.Info().
					Str("collection", collectionID).
					Int("fetched", fetched).
					Int("total", additional+1).
					Float64("progress_pct", float64(fetched)/float64(additional+1)*100).
					Msg("Fetch progress")
			}
		}
	}()

	for i := range slots {
		pageNum := i + 2
		g.Go(func() error {
			page, err := c.fetch(gctx, collectionID, pageNum)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", pageNum, err)
			}
			slots[i] = page.Items
			progress <- struct{}{}
			return nil
		})
	}

	err := g.Wait()
	close(progress)
	<-done

	if err != nil {
		log.Warn().
			Err(err).
			Str("collection", collectionID).
			Int("pages", additional+1).
			Msg("Page collection failed")
		return nil, err
	}

	log.Debug().
		Str("collection", collectionID).
		Int("pages", additional).
		Dur("duration", time.Since(start)).
		Msg("Remaining pages collected")

	return slots, nil
}

// CollectAll discovers, collects, and flattens a whole listing in
// canonical page order.
func (c *Collector) CollectAll(ctx context.Context, collectionID string) ([]Item, int, error) {
	start := time.Now()

	first, additional, err := c.Discover(ctx, collectionID)
	if err != nil {
		return nil, 0, err
	}

	log.Info().
		Str("collection", collectionID).
		Int("total_pages", additional+1).
		Int("total_items", first.Total).
		Msg("Starting parallel page fetch")

	rest, err := c.CollectRemaining(ctx, collectionID, additional)
	if err != nil {
		return nil, 0, err
	}

	items := Flatten(first.Items, rest)

	log.Info().
		Str("collection", collectionID).
		Int("pages", additional+1).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, additional + 1, nil
}

func (c *Collector) fetch(ctx context.Context, collectionID string, pageNum int) (*Page, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	page, err := c.source.FetchPage(ctx, collectionID, pageNum)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("page %d: source returned no page", pageNum)
	}

	pagesFetchedTotal.Inc()
	return page, nil
}

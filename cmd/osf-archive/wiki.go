package main

import (
	"fmt"
	"net/url"

	"github.com/Sternrassler/osf-archiver/pkg/archive"
	"github.com/Sternrassler/osf-archiver/pkg/cache"
	"github.com/Sternrassler/osf-archiver/pkg/client"
	"github.com/Sternrassler/osf-archiver/pkg/logging"
	"github.com/Sternrassler/osf-archiver/pkg/osf"
	"github.com/Sternrassler/osf-archiver/pkg/pagination"
	"github.com/Sternrassler/osf-archiver/pkg/sink"
	"github.com/Sternrassler/osf-archiver/pkg/wikidump"
)

// Run executes the wiki command.
func (c *WikiCmd) Run(deps *Dependencies) error {
	logger := logging.NewLogger("wikidump")

	source, err := osf.NewWikiSource(deps.Client, c.Kind, logger)
	if err != nil {
		return err
	}

	if c.Refresh && deps.Cache != nil {
		prefix, err := listingCachePrefix(deps.Client, c.Kind, c.GUID)
		if err != nil {
			return err
		}
		removed, err := deps.Cache.Purge(deps.Ctx, prefix)
		if err != nil {
			return err
		}
		logger.Info().Int("entries", removed).Msg("Dropped cached listing pages")
	}

	var target archive.Sink
	dest := c.OutputDir
	if c.Sink == "s3" {
		if err := deps.Objects.EnsureBucket(deps.Ctx); err != nil {
			return err
		}
		target = deps.Objects
		dest = "s3://" + deps.Objects.Bucket() + "/" + c.Prefix
	} else {
		dirSink, err := sink.NewDirSink(c.OutputDir, sink.DefaultExt)
		if err != nil {
			return err
		}
		target = dirSink
	}

	dumper := wikidump.New(source, target, wikidump.Config{
		Pages:   pagination.Config{MaxConcurrency: c.MaxConcurrency},
		Content: archive.Config{MaxConcurrency: c.MaxConcurrency},
	}, logger)

	result, err := dumper.Run(deps.Ctx, c.GUID)
	if err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Dumped %d wiki pages (%d bytes) of %s to %s\n", result.Items, result.Bytes, c.GUID, dest)
	return nil
}

// listingCachePrefix returns the cache key prefix of every listing page of
// a wiki, including any path the API root carries.
func listingCachePrefix(c *client.Client, kind, guid string) (string, error) {
	target, err := c.Resolve(osf.WikiListURL(kind, guid, 1))
	if err != nil {
		return "", err
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	return cache.PathPrefix(u.Path), nil
}

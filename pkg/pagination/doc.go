// Package pagination discovers and collects paginated listings.
//
// The first page of a listing carries the total item count and the page
// size; the number of remaining pages is derived from those once, and
// pages 2..N are then fetched concurrently into slots reserved per page.
// Flattening the slots in ascending order reproduces the canonical order of
// the listing no matter in which order the fetches completed.
//
// Example usage:
//
//	collector := pagination.NewCollector(source, pagination.DefaultConfig())
//	items, err := collector.CollectAll(ctx, guid)
//	if err != nil {
//	    return err
//	}
//	for _, item := range items {
//	    // item.Name, item.Locator
//	}
package pagination

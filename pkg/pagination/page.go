package pagination

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidPageSize is returned when a first page reports a page size
// that cannot be used to derive the page count.
var ErrInvalidPageSize = errors.New("invalid page size")

// Item is one entry of a listing: a name and the locator its content is
// fetched from. Names are not unique.
type Item struct {
	Name    string
	Locator string
}

// Page is one fetched page of a listing.
type Page struct {
	// Number is 1-based.
	Number int
	Items  []Item

	// Total and PerPage are only meaningful on page 1.
	Total   int
	PerPage int

	// HasNext reports whether the listing links to a following page.
	HasNext bool
}

// PageSource fetches a single page of a listing.
type PageSource interface {
	FetchPage(ctx context.Context, collectionID string, page int) (*Page, error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc func(ctx context.Context, collectionID string, page int) (*Page, error)

// FetchPage calls f.
func (f PageSourceFunc) FetchPage(ctx context.Context, collectionID string, page int) (*Page, error) {
	return f(ctx, collectionID, page)
}

// AdditionalPages returns how many pages follow the first one:
// ceil(total/perPage) - 1, never negative.
func AdditionalPages(total, perPage int) (int, error) {
	if perPage <= 0 {
		return 0, fmt.Errorf("%w: per_page=%d", ErrInvalidPageSize, perPage)
	}
	if total <= 0 {
		return 0, nil
	}

	pages := (total + perPage - 1) / perPage
	return max(pages-1, 0), nil
}

// Flatten concatenates first and then each slot in ascending order.
func Flatten(first []Item, rest [][]Item) []Item {
	n := len(first)
	for _, slot := range rest {
		n += len(slot)
	}

	out := make([]Item, 0, n)
	out = append(out, first...)
	for _, slot := range rest {
		out = append(out, slot...)
	}
	return out
}

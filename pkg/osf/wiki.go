package osf

import (
	"context"
	"fmt"

	"github.com/Sternrassler/osf-archiver/pkg/pagination"
	"github.com/rs/zerolog"
)

// Fetcher retrieves a resource body. *client.Client satisfies it; a
// non-2xx final status must be returned as an error.
type Fetcher interface {
	GetBytes(ctx context.Context, ref string) ([]byte, error)
}

// WikiSource serves the wiki listing of registrations or nodes page by page
// and fetches wiki content by download link.
type WikiSource struct {
	fetcher Fetcher
	kind    string
	logger  zerolog.Logger
}

// NewWikiSource creates a wiki source for the given resource kind.
func NewWikiSource(fetcher Fetcher, kind string, logger zerolog.Logger) (*WikiSource, error) {
	if kind == "" {
		kind = KindRegistrations
	}
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unsupported resource kind %q (want %s or %s)", kind, KindRegistrations, KindNodes)
	}

	return &WikiSource{
		fetcher: fetcher,
		kind:    kind,
		logger:  logger,
	}, nil
}

// FetchPage implements pagination.PageSource.
func (s *WikiSource) FetchPage(ctx context.Context, guid string, page int) (*pagination.Page, error) {
	ref := WikiListURL(s.kind, guid, page)

	body, err := s.fetcher.GetBytes(ctx, ref)
	if err != nil {
		return nil, err
	}

	p, err := DecodeWikiList(body, page)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("guid", guid).
		Int("page", page).
		Int("items", len(p.Items)).
		Bool("has_next", p.HasNext).
		Msg("Wiki listing page fetched")

	return p, nil
}

// FetchContent returns the raw content behind a wiki download link.
func (s *WikiSource) FetchContent(ctx context.Context, locator string) ([]byte, error) {
	return s.fetcher.GetBytes(ctx, locator)
}

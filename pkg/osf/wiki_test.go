package osf

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	bodies map[string]string
	refs   []string
}

func (f *fakeFetcher) GetBytes(ctx context.Context, ref string) ([]byte, error) {
	f.refs = append(f.refs, ref)
	body, ok := f.bodies[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(body), nil
}

func TestNewWikiSource_Kind(t *testing.T) {
	_, err := NewWikiSource(&fakeFetcher{}, "", zerolog.Nop())
	assert.NoError(t, err)

	_, err = NewWikiSource(&fakeFetcher{}, "nodes", zerolog.Nop())
	assert.NoError(t, err)

	_, err = NewWikiSource(&fakeFetcher{}, "collections", zerolog.Nop())
	assert.Error(t, err)
}

func TestWikiSource_FetchPage(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"v2/registrations/fxehm/wikis/?page=1": singlePageListing,
	}}
	source, err := NewWikiSource(fetcher, KindRegistrations, zerolog.Nop())
	require.NoError(t, err)

	page, err := source.FetchPage(context.Background(), "fxehm", 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, []string{"v2/registrations/fxehm/wikis/?page=1"}, fetcher.refs)
}

func TestWikiSource_FetchPage_PropagatesErrors(t *testing.T) {
	source, err := NewWikiSource(&fakeFetcher{}, KindNodes, zerolog.Nop())
	require.NoError(t, err)

	_, err = source.FetchPage(context.Background(), "fxehm", 1)
	assert.EqualError(t, err, "not found")
}

func TestWikiSource_FetchContent(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://localhost:8000/v2/wikis/dtns3/content/": "dtns3 data",
	}}
	source, err := NewWikiSource(fetcher, "", zerolog.Nop())
	require.NoError(t, err)

	data, err := source.FetchContent(context.Background(), "https://localhost:8000/v2/wikis/dtns3/content/")
	require.NoError(t, err)
	assert.Equal(t, "dtns3 data", string(data))
}

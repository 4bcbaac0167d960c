package archive

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/osf-archiver/internal/testutil"
	"github.com/Sternrassler/osf-archiver/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapFetcher serves content by locator with a random delay.
type mapFetcher struct {
	content map[string]string
	jitter  time.Duration
	calls   atomic.Int32
}

func (f *mapFetcher) FetchContent(ctx context.Context, locator string) ([]byte, error) {
	f.calls.Add(1)
	if f.jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(f.jitter))))
	}
	body, ok := f.content[locator]
	if !ok {
		return nil, fmt.Errorf("no content at %s", locator)
	}
	return []byte(body), nil
}

func TestWriter_WriteAll(t *testing.T) {
	fetcher := &mapFetcher{content: map[string]string{
		"dtns3": "dtns3 data",
		"md549": "md549 data",
		"p8kxa": "p8kxa data",
	}, jitter: 5 * time.Millisecond}
	sink := testutil.NewRecordingSink()

	items := []pagination.Item{
		{Name: "home", Locator: "dtns3"},
		{Name: "test1Ω≈ç√∫˜µ≤≥≥÷åß∂ƒ©˙∆∆˚¬…æ", Locator: "md549"},
		{Name: "test2", Locator: "p8kxa"},
	}

	result, err := NewWriter(fetcher, sink, Config{}, zerolog.Nop()).WriteAll(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Items)
	assert.Equal(t, int64(30), result.Bytes)
	assert.Equal(t, map[string][]byte{
		"home": []byte("dtns3 data"),
		"test1Ω≈ç√∫˜µ≤≥≥÷åß∂ƒ©˙∆∆˚¬…æ": []byte("md549 data"),
		"test2": []byte("p8kxa data"),
	}, sink.Files())
	assert.Len(t, sink.Calls(), 3)
}

func TestWriter_WriteAll_Empty(t *testing.T) {
	fetcher := &mapFetcher{}
	sink := testutil.NewRecordingSink()

	result, err := NewWriter(fetcher, sink, Config{}, zerolog.Nop()).WriteAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Items)
	assert.Zero(t, fetcher.calls.Load())
}

func TestWriter_WriteAll_Collision(t *testing.T) {
	fetcher := &mapFetcher{content: map[string]string{
		"a": "first candidate",
		"b": "second candidate",
	}, jitter: 3 * time.Millisecond}
	sink := testutil.NewRecordingSink()

	items := []pagination.Item{
		{Name: "home", Locator: "a"},
		{Name: "home", Locator: "b"},
	}

	result, err := NewWriter(fetcher, sink, Config{}, zerolog.Nop()).WriteAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Items)

	files := sink.Files()
	require.Len(t, files, 1)
	assert.Contains(t, []string{"first candidate", "second candidate"}, string(files["home"]))

	calls := sink.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, string(calls[1].Data), string(files["home"]), "last completed write wins")
}

func TestWriter_WriteAll_FetchFailureAborts(t *testing.T) {
	fetcher := &mapFetcher{content: map[string]string{"ok": "data"}}
	sink := testutil.NewRecordingSink()

	items := []pagination.Item{
		{Name: "good", Locator: "ok"},
		{Name: "bad", Locator: "missing"},
	}

	_, err := NewWriter(fetcher, sink, Config{}, zerolog.Nop()).WriteAll(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestWriter_WriteAll_SinkFailureAborts(t *testing.T) {
	wantErr := errors.New("disk full")
	fetcher := &mapFetcher{content: map[string]string{"x": "data"}}
	sink := testutil.NewRecordingSink()
	sink.Err = map[string]error{"home": wantErr}

	_, err := NewWriter(fetcher, sink, Config{MaxConcurrency: 1}, zerolog.Nop()).
		WriteAll(context.Background(), []pagination.Item{{Name: "home", Locator: "x"}})
	assert.ErrorIs(t, err, wantErr)
}

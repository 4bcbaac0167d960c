package wikidump

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/osf-archiver/internal/testutil"
	"github.com/Sternrassler/osf-archiver/pkg/archive"
	"github.com/Sternrassler/osf-archiver/pkg/client"
	"github.com/Sternrassler/osf-archiver/pkg/osf"
	"github.com/Sternrassler/osf-archiver/pkg/sink"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(t *testing.T, mock *testutil.MockOSF, kind string) *osf.WikiSource {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Retry.Cooldown = time.Millisecond

	c, err := client.New(cfg)
	require.NoError(t, err)

	source, err := osf.NewWikiSource(c, kind, zerolog.Nop())
	require.NoError(t, err)
	return source
}

func TestDumper_Run_Fxehm(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()

	mock.AddWiki(osf.KindRegistrations, "fxehm", "dtns3", "home", []byte("dtns3 data"))
	mock.AddWiki(osf.KindRegistrations, "fxehm", "md549", "test1Ω≈ç√∫˜µ≤≥≥÷åß∂ƒ©˙∆∆˚¬…æ", []byte("md549 data"))
	mock.AddWiki(osf.KindRegistrations, "fxehm", "p8kxa", "test2", []byte("p8kxa data"))

	root := t.TempDir()
	dirSink, err := sink.NewDirSink(root, sink.DefaultExt)
	require.NoError(t, err)

	result, err := New(newSource(t, mock, ""), dirSink, Config{}, zerolog.Nop()).Run(context.Background(), "fxehm")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 3, result.Items)
	assert.Equal(t, int64(30), result.Bytes)

	want := map[string]string{
		"home.md": "dtns3 data",
		"test1Ω≈ç√∫˜µ≤≥≥÷åß∂ƒ©˙∆∆˚¬…æ.md": "md549 data",
		"test2.md": "p8kxa data",
	}
	for name, content := range want {
		got, err := os.ReadFile(filepath.Join(root, name))
		require.NoError(t, err, name)
		assert.Equal(t, content, string(got), name)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, 1, mock.RequestsFor(testutil.ListingKey(osf.KindRegistrations, "fxehm", 1)))
}

func TestDumper_Run_RetriesThrottledRequests(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()

	mock.AddWiki(osf.KindRegistrations, "fxehm", "dtns3", "home", []byte("dtns3 data"))
	mock.FailNext(testutil.ListingKey(osf.KindRegistrations, "fxehm", 1), 429, 503)
	mock.FailNext(testutil.ContentKey("dtns3"), 500, 429, 429)

	recorder := testutil.NewRecordingSink()
	result, err := New(newSource(t, mock, ""), recorder, Config{}, zerolog.Nop()).Run(context.Background(), "fxehm")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Items)
	assert.Equal(t, []testutil.Persisted{{Name: "home", Data: []byte("dtns3 data")}}, recorder.Calls())
	assert.Equal(t, 3, mock.RequestsFor(testutil.ListingKey(osf.KindRegistrations, "fxehm", 1)))
	assert.Equal(t, 4, mock.RequestsFor(testutil.ContentKey("dtns3")))
}

func TestDumper_Run_MultiPageOrder(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()
	mock.SetPerPage(4)

	const total = 23
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("w%04d", i)
		mock.AddWiki(osf.KindNodes, "abc12", id, fmt.Sprintf("page-%02d", i), []byte(id))
	}
	// Make early pages finish last.
	mock.SetPageDelay(2, 30*time.Millisecond)
	mock.SetPageDelay(3, 20*time.Millisecond)

	// One content fetch at a time persists items in listing order.
	recorder := testutil.NewRecordingSink()
	dumper := New(newSource(t, mock, osf.KindNodes), recorder, Config{
		Content: archive.Config{MaxConcurrency: 1},
	}, zerolog.Nop())

	result, err := dumper.Run(context.Background(), "abc12")
	require.NoError(t, err)

	assert.Equal(t, 6, result.Pages)
	assert.Equal(t, total, result.Items)

	calls := recorder.Calls()
	require.Len(t, calls, total)
	for i, call := range calls {
		assert.Equal(t, fmt.Sprintf("page-%02d", i), call.Name)
		assert.Equal(t, fmt.Sprintf("w%04d", i), string(call.Data))
	}
}

func TestDumper_Run_Collision(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()

	mock.AddWiki(osf.KindRegistrations, "fxehm", "aaaaa", "home", []byte("first"))
	mock.AddWiki(osf.KindRegistrations, "fxehm", "bbbbb", "home", []byte("second"))

	root := t.TempDir()
	dirSink, err := sink.NewDirSink(root, sink.DefaultExt)
	require.NoError(t, err)

	result, err := New(newSource(t, mock, ""), dirSink, Config{}, zerolog.Nop()).Run(context.Background(), "fxehm")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Items)

	got, err := os.ReadFile(filepath.Join(root, "home.md"))
	require.NoError(t, err)
	assert.Contains(t, []string{"first", "second"}, string(got))
}

func TestDumper_Run_TerminalErrors(t *testing.T) {
	t.Run("listing not found", func(t *testing.T) {
		mock := testutil.NewMockOSF()
		defer mock.Close()

		_, err := New(newSource(t, mock, ""), testutil.NewRecordingSink(), Config{}, zerolog.Nop()).Run(context.Background(), "zzzzz")
		require.Error(t, err)
		assert.True(t, client.IsStatus(err, http.StatusNotFound), "got %v", err)
	})

	t.Run("content forbidden", func(t *testing.T) {
		mock := testutil.NewMockOSF()
		defer mock.Close()

		mock.AddWiki(osf.KindRegistrations, "fxehm", "dtns3", "home", []byte("dtns3 data"))
		mock.FailNext(testutil.ContentKey("dtns3"), http.StatusForbidden)

		_, err := New(newSource(t, mock, ""), testutil.NewRecordingSink(), Config{}, zerolog.Nop()).Run(context.Background(), "fxehm")
		assert.True(t, client.IsStatus(err, http.StatusForbidden), "got %v", err)
	})

	t.Run("unsafe name", func(t *testing.T) {
		mock := testutil.NewMockOSF()
		defer mock.Close()

		mock.AddWiki(osf.KindRegistrations, "fxehm", "dtns3", "../../etc/passwd", []byte("x"))
		dirSink, err := sink.NewDirSink(t.TempDir(), sink.DefaultExt)
		require.NoError(t, err)

		_, err = New(newSource(t, mock, ""), dirSink, Config{}, zerolog.Nop()).Run(context.Background(), "fxehm")
		assert.True(t, errors.Is(err, sink.ErrUnsafeName), "got %v", err)
	})
}

//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/osf-archiver/internal/testutil"
	"github.com/Sternrassler/osf-archiver/pkg/client"
	"github.com/Sternrassler/osf-archiver/pkg/osf"
	"github.com/Sternrassler/osf-archiver/pkg/wikidump"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(context.Background())
	})

	return redisClient
}

// TestWikiDump_RevalidatesFromCache runs the same dump twice against a
// listing that supports ETags; the second run must revalidate instead of
// downloading again.
func TestWikiDump_RevalidatesFromCache(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockOSF()
	defer mock.Close()

	listing := []byte(`{
		"data": [{"id": "dtns3", "attributes": {"name": "home"}, "links": {"download": "` + mock.ContentURL("dtns3") + `"}}],
		"links": {"next": null},
		"meta": {"total": 1, "per_page": 10}
	}`)
	etagged := func(body []byte, etag string) func(w http.ResponseWriter, r *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", etag)
			w.Header().Set("Cache-Control", "max-age=0")
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Write(body)
		}
	}
	mock.SetHandler("/v2/registrations/fxehm/wikis/", etagged(listing, `"list-v1"`))
	mock.SetHandler("/v2/wikis/dtns3/content/", etagged([]byte("dtns3 data"), `"content-v1"`))

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Redis = redisClient
	cfg.Retry.Cooldown = time.Millisecond

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	source, err := osf.NewWikiSource(c, osf.KindRegistrations, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWikiSource: %v", err)
	}

	for run := 1; run <= 2; run++ {
		sink := testutil.NewRecordingSink()
		result, err := wikidump.New(source, sink, wikidump.Config{}, zerolog.Nop()).Run(context.Background(), "fxehm")
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if result.Items != 1 || string(sink.Files()["home"]) != "dtns3 data" {
			t.Errorf("run %d: unexpected result %+v, files %v", run, result, sink.Files())
		}
	}

	if got := mock.ConditionalCount(); got != 2 {
		t.Errorf("conditional requests = %d, want 2 (listing and content)", got)
	}
	if got := mock.RequestCount(); got != 4 {
		t.Errorf("requests = %d, want 4", got)
	}
}

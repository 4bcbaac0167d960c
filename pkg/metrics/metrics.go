// Package metrics documents the archiver's Prometheus metrics and exports
// them for batch runs.
//
// Metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, archive, upload) and registered via promauto on
// the default registry. An archive run is a short-lived batch job, so
// instead of serving /metrics the CLI writes the registry to a file in the
// node-exporter textfile collector format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Gatherer is the registry all archiver metrics are registered with.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every gathered metric to path. The file is
// replaced atomically so a collector never reads a partial file.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - osf_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status ("cached", "network_error" included)
//   - osf_request_duration_seconds{endpoint} (Histogram): duration including cooldowns
//   - osf_errors_total{class} (Counter): terminal errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - osf_retries_total{status} (Counter): resubmissions by triggering status (429, 500, 503)
//   - osf_retry_cooldown_seconds (Histogram): cooldown waited per resubmission
//   - osf_retry_exhausted_total (Counter): requests abandoned under a bounded policy
//
// Pacing Metrics (pkg/ratelimit):
//   - osf_pacer_waits_total (Counter): requests that passed the client-side pacer
//
// Cache Metrics (pkg/cache):
//   - osf_cache_hits_total, osf_cache_misses_total (Counter)
//   - osf_cache_stored_bytes_total (Counter): bytes written to Redis
//   - osf_conditional_requests_total (Counter): requests sent with a validator
//   - osf_304_responses_total (Counter): revalidations answered with 304
//   - osf_cache_errors_total{operation} (Counter)
//
// Pipeline Metrics:
//   - osf_pages_fetched_total (Counter, pkg/pagination): listing pages fetched
//   - osf_items_written_total (Counter, pkg/archive): items persisted
//   - osf_written_bytes_total (Counter, pkg/archive): bytes persisted
//   - osf_uploads_total{result} (Counter, pkg/upload): uploads by result
//
// Example Prometheus Queries:
//
//   # Throttling pressure
//   sum by (status) (rate(osf_retries_total[1h]))
//
//   # Cache effectiveness across runs
//   osf_304_responses_total / osf_conditional_requests_total
